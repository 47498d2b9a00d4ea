package main

// General API documentation for swaggo. Run `swag init -g cmd/imgclassd/docs.go` to generate docs.
//
// @title           imgclassd API
// @version         1.0
// @description     HTTP API for image classification with a fine-tuned convolutional network.
//
// @contact.name   imgclassd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
