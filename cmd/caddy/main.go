// Command caddy is a build of Caddy which includes the standard modules along
// with all linksplit plugins.
package main

import (
	caddycmd "github.com/caddyserver/caddy/v2/cmd"

	_ "dev.mediocregopher.com/linksplit-caddy-plugins.git"
	_ "github.com/caddyserver/caddy/v2/modules/standard"
)

func main() {
	caddycmd.Main()
}
