// Package api exposes the task manager over HTTP. It translates JSON
// requests into operation groups, tracks the resulting tasks so clients
// can poll or cancel them, and reports scheduler statistics.
package api
