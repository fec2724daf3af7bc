// cmd/main.go
package main

import (
	"github.com/themidix/GlucoCheckWebAPIv4/app"
)

// @title           GlucoCheck Auth API
// @version         1.0
// @description     Authentication and token lifecycle service for the GlucoCheck food-logging application.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
