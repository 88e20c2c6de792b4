// The main package for the newsdl executable.
package main

import "github.com/JakeFAU/news-downloader/cmd"

func main() {
	cmd.Execute()
}
