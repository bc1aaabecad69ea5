package main

// General API documentation for swaggo. Run `swag init -g cmd/chatd/docs.go -o internal/httpapi/docs` to regenerate.
//
// @title           chatd API
// @version         1.0
// @description     Streams completions from a single local language model to many HTTP clients.
//
// @contact.name   chatd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
