// Package shared holds helpers used across packages. The testutil
// subpackage provides a capturing slog handler and file fixtures for tests.
package shared
