package provider

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/apiclient"
	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/datasources"
	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/resources"
)

const (
	envEndpoint = "HWPORTAL_ENDPOINT"
	envToken    = "HWPORTAL_API_TOKEN"
)

var _ provider.Provider = &hwportalProvider{}

// New returns the provider factory function expected by providerserver.Serve.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &hwportalProvider{version: version}
	}
}

type hwportalProvider struct {
	version string
}

type hwportalProviderModel struct {
	Endpoint types.String `tfsdk:"endpoint"`
	Token    types.String `tfsdk:"token"`
}

func (p *hwportalProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "hwportal"
	resp.Version = p.version
}

func (p *hwportalProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Manages hardware sets and projects in the hwportal inventory service.",
		Attributes: map[string]schema.Attribute{
			"endpoint": schema.StringAttribute{
				Description: "Base URL of the hwportal service (e.g. https://hw.lab.local). " +
					"Can also be set via the " + envEndpoint + " environment variable.",
				Optional: true,
			},
			"token": schema.StringAttribute{
				Description: "Bearer token for the admin API. " +
					"Can also be set via the " + envToken + " environment variable.",
				Optional:  true,
				Sensitive: true,
			},
		},
	}
}

// resolve picks the explicit configuration value over the environment.
// Blank values count as unset.
func resolve(v types.String, env string) string {
	if !v.IsNull() && !v.IsUnknown() {
		if s := strings.TrimSpace(v.ValueString()); s != "" {
			return s
		}
	}
	return strings.TrimSpace(os.Getenv(env))
}

func (p *hwportalProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var config hwportalProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	endpoint := resolve(config.Endpoint, envEndpoint)
	token := resolve(config.Token, envToken)

	if endpoint == "" {
		resp.Diagnostics.AddAttributeError(path.Root("endpoint"), "Missing endpoint",
			"endpoint must be set in the provider configuration or via the "+envEndpoint+" environment variable.")
	}
	if token == "" {
		resp.Diagnostics.AddAttributeError(path.Root("token"), "Missing token",
			"token must be set in the provider configuration or via the "+envToken+" environment variable.")
	}
	if resp.Diagnostics.HasError() {
		return
	}

	client, err := apiclient.NewClient(endpoint, token)
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("endpoint"), "Invalid endpoint", err.Error())
		return
	}
	resp.ResourceData = client
	resp.DataSourceData = client
}

func (p *hwportalProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		resources.NewHardwareSetResource,
		resources.NewProjectResource,
	}
}

func (p *hwportalProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		datasources.NewHardwareSetsDataSource,
	}
}
