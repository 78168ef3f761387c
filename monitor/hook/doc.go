// Package hook runs the external command configured to
// react to a tampering event.
package hook
