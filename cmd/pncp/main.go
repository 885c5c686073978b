// Command pncp crawls the PNCP procurement portal into local tables and
// builds unified reports and a search index from them.
package main

import "github.com/JakeFAU/pncp-crawler/cmd"

func main() {
	cmd.Execute()
}
