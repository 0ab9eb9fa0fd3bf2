package datasources

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/apiclient"
)

// Ensure full interface compliance at compile time.
var _ datasource.DataSource = &hardwareSetsDataSource{}
var _ datasource.DataSourceWithConfigure = &hardwareSetsDataSource{}

type hardwareSetsDataSource struct {
	client *apiclient.Client
}

// NewHardwareSetsDataSource is the factory function registered with the provider.
func NewHardwareSetsDataSource() datasource.DataSource {
	return &hardwareSetsDataSource{}
}

type hardwareSetsDataSourceModel struct {
	MinAvailable types.Int64            `tfsdk:"min_available"`
	HardwareSets []hardwareSetDataModel `tfsdk:"hardware_sets"`
}

type hardwareSetDataModel struct {
	ID        types.String `tfsdk:"id"`
	Name      types.String `tfsdk:"name"`
	Capacity  types.Int64  `tfsdk:"capacity"`
	Available types.Int64  `tfsdk:"available"`
}

func (d *hardwareSetsDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_hardware_sets" // → "hwportal_hardware_sets"
}

func (d *hardwareSetsDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Lists hardware sets ordered by id, optionally only those with spare units.",
		Attributes: map[string]schema.Attribute{
			"min_available": schema.Int64Attribute{
				Description: "Only return sets with at least this many units available.",
				Optional:    true,
			},
			"hardware_sets": schema.ListNestedAttribute{
				Description: "Hardware sets returned by the API.",
				Computed:    true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"id":        schema.StringAttribute{Computed: true, Description: "Hardware set id."},
						"name":      schema.StringAttribute{Computed: true, Description: "Display name."},
						"capacity":  schema.Int64Attribute{Computed: true, Description: "Total units."},
						"available": schema.Int64Attribute{Computed: true, Description: "Units not checked out."},
					},
				},
			},
		},
	}
}

func (d *hardwareSetsDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	client, ok := req.ProviderData.(*apiclient.Client)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected provider data type",
			fmt.Sprintf("Expected *apiclient.Client, got %T", req.ProviderData),
		)
		return
	}
	d.client = client
}

func (d *hardwareSetsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var state hardwareSetsDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	sets, err := d.client.ListHardware(ctx)
	if err != nil {
		resp.Diagnostics.AddError("Error listing hwportal hardware sets", err.Error())
		return
	}

	min := state.MinAvailable.ValueInt64()
	state.HardwareSets = make([]hardwareSetDataModel, 0, len(sets))
	for _, h := range sets {
		if h.Available < min {
			continue
		}
		state.HardwareSets = append(state.HardwareSets, hardwareSetDataModel{
			ID:        types.StringValue(h.ID),
			Name:      types.StringValue(h.Name),
			Capacity:  types.Int64Value(h.Capacity),
			Available: types.Int64Value(h.Available),
		})
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}
