// Package browser drives a Chrome instance over the DevTools protocol.
//
// A Session owns the allocator and tab contexts, accepts JavaScript dialogs
// as they open, records network responses and routes downloads into a
// fixed directory. Higher layers talk to it through small interfaces so
// they can be tested without a browser.
package browser
