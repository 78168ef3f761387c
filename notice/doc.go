// Package notice substitutes single-brace {VAR} placeholders in message
// formats, sidecar path patterns and hook arguments. Unknown placeholders are
// preserved as-is so a typo stays visible in the output instead of vanishing.
package notice
