// Package errors provides structured, coded errors for startup and CLI failures.
//
// Configuration mistakes, asset publication failures and server errors are
// reported with a stable code, a category and, where it helps, a hint:
//
//	err := errors.New(errors.CodeUnsupportedContext).
//	    WithDetailf("got %T", ctx)
//
//	errors.Fprint(os.Stderr, err)
//	// ERROR E100: Unsupported context
//	//
//	//   got *main.plainContext
//	//
//	//   Hint: Inject the module into a webui.App created with webui.New().
//
// Errors from the config file carry a Location with the surrounding lines.
// Error implements Is by code, so errors.Is(err, errors.New(code)) matches
// any error of that code in the chain.
package errors
