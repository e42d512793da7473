// Package docs provides generated OpenAPI documentation.
//
// Snapgloss API
//
//	@title			Snapgloss API
//	@version		1.0
//	@description	Document annotation API: ingest screenshots and PDFs of Chinese text, serve pinyin/translation annotated documents.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/snapgloss/snapgloss
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/snapgloss/serve.go -o ./swagger --parseDependency --parseInternal
