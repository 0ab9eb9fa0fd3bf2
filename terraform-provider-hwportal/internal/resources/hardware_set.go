package resources

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/apiclient"
)

var (
	_ resource.Resource                = &hardwareSetResource{}
	_ resource.ResourceWithConfigure   = &hardwareSetResource{}
	_ resource.ResourceWithImportState = &hardwareSetResource{}
)

type hardwareSetResource struct {
	client *apiclient.Client
}

// hardwareSetModel maps the Terraform schema attributes to Go values.
type hardwareSetModel struct {
	ID        types.String `tfsdk:"id"`
	Name      types.String `tfsdk:"name"`
	Capacity  types.Int64  `tfsdk:"capacity"`
	Available types.Int64  `tfsdk:"available"`
}

// NewHardwareSetResource is the factory function registered with the provider.
func NewHardwareSetResource() resource.Resource {
	return &hardwareSetResource{}
}

func (r *hardwareSetResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_hardware_set" // → "hwportal_hardware_set"
}

func (r *hardwareSetResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Manages a hardware set: a pool of identical units projects check in and out.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Description: "Hardware set id (e.g. hw1). Changing it replaces the set.",
				Required:    true,
				Validators:  []validator.String{stringvalidator.LengthAtLeast(1)},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"name": schema.StringAttribute{
				Description: "Display name.",
				Optional:    true,
				Computed:    true,
			},
			"capacity": schema.Int64Attribute{
				Description: "Total units in the set. Cannot drop below the units currently checked out.",
				Required:    true,
				Validators:  []validator.Int64{int64validator.AtLeast(0)},
			},
			"available": schema.Int64Attribute{
				Description: "Units not checked out by any project.",
				Computed:    true,
			},
		},
	}
}

func (r *hardwareSetResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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
	r.client = client
}

func (r *hardwareSetResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan hardwareSetModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	created, err := r.client.CreateHardware(ctx, apiclient.HardwareSet{
		ID:       plan.ID.ValueString(),
		Name:     plan.Name.ValueString(),
		Capacity: plan.Capacity.ValueInt64(),
	})
	if err != nil {
		resp.Diagnostics.AddError("Error creating hwportal_hardware_set", err.Error())
		return
	}

	hardwareSetToState(created, &plan)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *hardwareSetResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state hardwareSetModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	h, err := r.client.GetHardware(ctx, state.ID.ValueString())
	if apiclient.IsNotFound(err) {
		// deleted outside Terraform
		resp.State.RemoveResource(ctx)
		return
	}
	if err != nil {
		resp.Diagnostics.AddError("Error reading hwportal_hardware_set", err.Error())
		return
	}

	hardwareSetToState(h, &state)
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

func (r *hardwareSetResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan hardwareSetModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	updated, err := r.client.UpdateHardware(ctx, apiclient.HardwareSet{
		ID:       plan.ID.ValueString(),
		Name:     plan.Name.ValueString(),
		Capacity: plan.Capacity.ValueInt64(),
	})
	if err != nil {
		resp.Diagnostics.AddError("Error updating hwportal_hardware_set", err.Error())
		return
	}

	hardwareSetToState(updated, &plan)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *hardwareSetResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state hardwareSetModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if err := r.client.DeleteHardware(ctx, state.ID.ValueString()); err != nil {
		resp.Diagnostics.AddError("Error deleting hwportal_hardware_set", err.Error())
	}
}

// ImportState enables: terraform import hwportal_hardware_set.hw1 hw1
func (r *hardwareSetResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("id"), req, resp)
}

func hardwareSetToState(h *apiclient.HardwareSet, s *hardwareSetModel) {
	s.ID = types.StringValue(h.ID)
	s.Name = types.StringValue(h.Name)
	s.Capacity = types.Int64Value(h.Capacity)
	s.Available = types.Int64Value(h.Available)
}
