// SPDX-License-Identifier: MIT
package main

import "github.com/skaphos/repobar/cmd/repobar"

var execute = repobar.Execute

func main() {
	execute()
}
