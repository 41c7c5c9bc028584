package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Registered error codes.
const (
	CodeUnsupportedContext = "E100"
	CodeRegistryFrozen     = "E101"
	CodeInvalidComponent   = "E102"
	CodeConfigParse        = "E103"
	CodeConfigValue        = "E104"
	CodeAlreadyInjected    = "E105"

	CodeAssetPublish  = "E110"
	CodeAssetOverride = "E111"
	CodeAssetMirror   = "E112"

	CodeUnknownComponent = "E120"
	CodeHandlerFailed    = "E121"

	CodeMalformedMessage = "E130"

	CodeServe   = "E140"
	CodeWatcher = "E141"
	CodeCommand = "E142"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E100-E109)
	// ============================================

	CodeUnsupportedContext: {
		Category:   CategoryConfig,
		Message:    "Unsupported context",
		Detail:     "The UI module can only be injected into a context that serves HTTP routes.",
		Suggestion: "Inject the module into a webui.App created with webui.New().",
	},
	CodeRegistryFrozen: {
		Category:   CategoryConfig,
		Message:    "Component registry frozen",
		Detail:     "Components must be added before the module is injected. The registry is read-only afterwards.",
		Suggestion: "Move AddUI calls before App.Use.",
	},
	CodeInvalidComponent: {
		Category: CategoryConfig,
		Message:  "Invalid component registration",
		Detail:   "A component needs a non-empty type id, a factory and a mount path no other component uses.",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed as TOML.",
	},
	CodeConfigValue: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	CodeAlreadyInjected: {
		Category: CategoryConfig,
		Message:  "Module already injected",
		Detail:   "A UI module can be injected into one context only.",
	},

	// ============================================
	// Asset Errors (E110-E119)
	// ============================================

	CodeAssetPublish: {
		Category: CategoryAssets,
		Message:  "Asset publication failed",
		Detail:   "The client engine could not be bound to its stamped URLs.",
	},
	CodeAssetOverride: {
		Category:   CategoryAssets,
		Message:    "Asset override not found",
		Suggestion: "Check the script and style paths in the [assets] section.",
	},
	CodeAssetMirror: {
		Category: CategoryAssets,
		Message:  "Asset mirror failed",
		Detail:   "Uploading the stamped assets to object storage failed.",
	},

	// ============================================
	// Runtime Errors (E120-E129)
	// ============================================

	CodeUnknownComponent: {
		Category: CategoryRuntime,
		Message:  "Unknown component type",
		Detail:   "A message named a component type that is not registered.",
	},
	CodeHandlerFailed: {
		Category: CategoryRuntime,
		Message:  "Message handler failed",
	},

	// ============================================
	// Protocol Errors (E130-E139)
	// ============================================

	CodeMalformedMessage: {
		Category: CategoryProtocol,
		Message:  "Malformed message",
		Detail:   "An inbound frame was not a JSON object with a type and session identifiers.",
	},

	// ============================================
	// CLI Errors (E140-E149)
	// ============================================

	CodeServe: {
		Category: CategoryCLI,
		Message:  "Server failed",
	},
	CodeWatcher: {
		Category: CategoryCLI,
		Message:  "Asset watcher failed",
	},
	CodeCommand: {
		Category:   CategoryCLI,
		Message:    "Command failed",
		Suggestion: "Run webui --help for usage",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
