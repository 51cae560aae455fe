// Package core holds the conversation primitives shared by every Keepsake
// component: message roles, the Message type, and window helpers.
//
// The package is intentionally tiny. Components accept []core.Message windows
// rather than owning conversation state; the session layer that produces the
// transcript lives outside this SDK.
package core
