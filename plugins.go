// Package linksplitcaddyplugins is an index package which automatically
// imports and registers all plugins defined in this module.
package linksplitcaddyplugins

import (
	_ "dev.mediocregopher.com/linksplit-caddy-plugins.git/command"
	_ "dev.mediocregopher.com/linksplit-caddy-plugins.git/global"
	_ "dev.mediocregopher.com/linksplit-caddy-plugins.git/http/handlers"
	_ "dev.mediocregopher.com/linksplit-caddy-plugins.git/http/handlers/templates/functions"
)
