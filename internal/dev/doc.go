// Package dev watches engine asset overrides during development.
//
// When the script or stylesheet configured in the [assets] section changes
// on disk, every connected page is told to reload so it picks up the new
// file:
//
//	r := dev.NewReloader([]string{cfg.Assets.Script, cfg.Assets.Style}, module, logger)
//	go r.Run(ctx)
//
// Changes are debounced so an editor writing a file in several steps
// triggers one reload.
package dev
