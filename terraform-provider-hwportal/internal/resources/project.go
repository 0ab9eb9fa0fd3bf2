package resources

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework-validators/setvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/setplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/apiclient"
)

var (
	_ resource.Resource                = &projectResource{}
	_ resource.ResourceWithConfigure   = &projectResource{}
	_ resource.ResourceWithImportState = &projectResource{}
)

// projectResource manages a project and its members. The admin API can add
// members but not remove them, and has no project delete: destroying the
// resource only forgets it.
type projectResource struct {
	client *apiclient.Client
}

type projectModel struct {
	ID              types.String `tfsdk:"id"`
	Name            types.String `tfsdk:"name"`
	Description     types.String `tfsdk:"description"`
	AuthorizedUsers types.Set    `tfsdk:"authorized_users"`
}

// NewProjectResource is the factory function registered with the provider.
func NewProjectResource() resource.Resource {
	return &projectResource{}
}

func (r *projectResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_project"
}

func (r *projectResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Manages a project and the users allowed to check hardware in and out for it. " +
			"Members can be added but not removed; destroying the resource leaves the project in place.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Description:   "Project id.",
				Required:      true,
				Validators:    []validator.String{stringvalidator.LengthAtLeast(1)},
				PlanModifiers: []planmodifier.String{stringplanmodifier.RequiresReplace()},
			},
			"name": schema.StringAttribute{
				Description:   "Display name. Changing it replaces the project.",
				Optional:      true,
				Computed:      true,
				PlanModifiers: []planmodifier.String{stringplanmodifier.RequiresReplaceIfConfigured(), stringplanmodifier.UseStateForUnknown()},
			},
			"description": schema.StringAttribute{
				Description:   "Free-form description. Changing it replaces the project.",
				Optional:      true,
				Computed:      true,
				PlanModifiers: []planmodifier.String{stringplanmodifier.RequiresReplaceIfConfigured(), stringplanmodifier.UseStateForUnknown()},
			},
			"authorized_users": schema.SetAttribute{
				Description: "User ids allowed to check hardware in and out. An empty set lets any user act.",
				ElementType: types.StringType,
				Optional:    true,
				Computed:    true,
				Validators: []validator.Set{
					setvalidator.ValueStringsAre(stringvalidator.LengthAtLeast(1)),
				},
				PlanModifiers: []planmodifier.Set{setplanmodifier.UseStateForUnknown()},
			},
		},
	}
}

func (r *projectResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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

func (r *projectResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan projectModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	users, diags := usersOf(ctx, plan.AuthorizedUsers)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	created, err := r.client.CreateProject(ctx, apiclient.Project{
		ID:              plan.ID.ValueString(),
		Name:            plan.Name.ValueString(),
		Description:     plan.Description.ValueString(),
		AuthorizedUsers: users,
	})
	if err != nil {
		resp.Diagnostics.AddError("Error creating hwportal_project", err.Error())
		return
	}

	resp.Diagnostics.Append(projectToState(ctx, created, &plan)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *projectResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state projectModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	p, err := r.client.GetProject(ctx, state.ID.ValueString())
	if apiclient.IsNotFound(err) {
		resp.State.RemoveResource(ctx)
		return
	}
	if err != nil {
		resp.Diagnostics.AddError("Error reading hwportal_project", err.Error())
		return
	}

	resp.Diagnostics.Append(projectToState(ctx, p, &state)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// Update adds the members that are in the plan but not in the state.
func (r *projectResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state projectModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	want, diags := usersOf(ctx, plan.AuthorizedUsers)
	resp.Diagnostics.Append(diags...)
	have, diags := usersOf(ctx, state.AuthorizedUsers)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	for _, u := range have {
		if !slices.Contains(want, u) {
			resp.Diagnostics.AddAttributeError(path.Root("authorized_users"), "Cannot remove project member",
				fmt.Sprintf("User %q is a member of project %q; the hwportal API cannot remove members.", u, state.ID.ValueString()))
		}
	}
	if resp.Diagnostics.HasError() {
		return
	}

	id := state.ID.ValueString()
	var latest *apiclient.Project
	for _, u := range want {
		if slices.Contains(have, u) {
			continue
		}
		p, err := r.client.AddProjectUser(ctx, id, u)
		if err != nil {
			resp.Diagnostics.AddError("Error updating hwportal_project", err.Error())
			return
		}
		latest = p
	}
	if latest == nil {
		p, err := r.client.GetProject(ctx, id)
		if err != nil {
			resp.Diagnostics.AddError("Error reading hwportal_project", err.Error())
			return
		}
		latest = p
	}

	resp.Diagnostics.Append(projectToState(ctx, latest, &plan)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *projectResource) Delete(_ context.Context, _ resource.DeleteRequest, resp *resource.DeleteResponse) {
	resp.Diagnostics.AddWarning("Project not deleted",
		"The hwportal API has no project delete. The project was removed from Terraform state only.")
}

// ImportState enables: terraform import hwportal_project.robotics p1
func (r *projectResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("id"), req, resp)
}

func usersOf(ctx context.Context, set types.Set) ([]string, diag.Diagnostics) {
	if set.IsNull() || set.IsUnknown() {
		return nil, nil
	}
	var users []string
	diags := set.ElementsAs(ctx, &users, false)
	slices.Sort(users)
	return users, diags
}

func projectToState(ctx context.Context, p *apiclient.Project, s *projectModel) diag.Diagnostics {
	users := p.AuthorizedUsers
	if users == nil {
		users = []string{}
	}
	set, diags := types.SetValueFrom(ctx, types.StringType, users)
	s.ID = types.StringValue(p.ID)
	s.Name = types.StringValue(p.Name)
	s.Description = types.StringValue(p.Description)
	s.AuthorizedUsers = set
	return diags
}
