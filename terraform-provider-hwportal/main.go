package main

import (
	"context"
	"log"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/provider"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	err := providerserver.Serve(context.Background(), provider.New(version), providerserver.ServeOpts{
		// Address must match the source in consumers' required_providers block.
		Address: "registry.terraform.io/tphummel/hwportal",
	})
	if err != nil {
		log.Fatal(err)
	}
}
