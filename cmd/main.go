package main

import (
	"github.com/montoyitadevelp/acme-order-pipeline/internal/app"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
