package server

//go:generate swag init -g internal/server/swagger.go -o docs/swagger --packageName swagger --parseInternal

// @title scand API
// @version 0.1
// @description Interactive documentation for the scand scan orchestration API surface.
// @contact.name scand Maintainers
// @contact.url https://github.com/breakingcid/scand
// @BasePath /

// @securityDefinitions.apikey WorkerAPIKey
// @in header
// @name X-Worker-API-Key
