/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package main

import (
	"github.com/josephgoksu/radial/cmd"
	"github.com/josephgoksu/radial/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	cmd.Execute()
}
