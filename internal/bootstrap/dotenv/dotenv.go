// Package dotenv loads the project .env as an import side effect, for tests
// and tools that read QUESTRADE_* variables before any config is loaded.
//
//	import _ "qtcache/internal/bootstrap/dotenv"
//
// Existing variables win unless DOTENV_OVERLOAD=1. NO_DOTENV=1 disables it.
package dotenv

import "qtcache/pkg/confkit"

func init() {
	confkit.LoadDotenvOnce()
}
