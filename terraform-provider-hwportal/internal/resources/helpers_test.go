package resources_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	resourceschema "github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tftypes"

	"github.com/tphummel/hwportal/terraform-provider-hwportal/internal/apiclient"
)

// fakeAPI is an in-memory stand-in for the hwportal admin API.
type fakeAPI struct {
	mu       sync.Mutex
	hardware map[string]apiclient.HardwareSet
	projects map[string]apiclient.Project
	// checkedOut is subtracted from capacity to report availability
	checkedOut map[string]int64
	calls      []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *apiclient.Client) {
	t.Helper()
	f := &fakeAPI{
		hardware:   map[string]apiclient.HardwareSet{},
		projects:   map[string]apiclient.Project{},
		checkedOut: map[string]int64{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := apiclient.NewClient(srv.URL, "test-token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return f, client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/"), "/")
	notFound := func() { writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"}) }

	switch {
	case parts[0] == "hardware" && len(parts) == 1 && r.Method == http.MethodPost:
		var h apiclient.HardwareSet
		json.NewDecoder(r.Body).Decode(&h)
		if _, ok := f.hardware[h.ID]; ok {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "hardware set already exists"})
			return
		}
		h.Available = h.Capacity
		f.hardware[h.ID] = h
		writeJSON(w, http.StatusCreated, h)

	case parts[0] == "hardware" && len(parts) == 2:
		h, ok := f.hardware[parts[1]]
		if !ok {
			notFound()
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h)
		case http.MethodPut:
			var in apiclient.HardwareSet
			json.NewDecoder(r.Body).Decode(&in)
			if in.Capacity < f.checkedOut[h.ID] {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "capacity is below the quantity checked out"})
				return
			}
			h.Name, h.Capacity, h.Available = in.Name, in.Capacity, in.Capacity-f.checkedOut[h.ID]
			f.hardware[h.ID] = h
			writeJSON(w, http.StatusOK, h)
		case http.MethodDelete:
			if f.checkedOut[h.ID] > 0 {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "hardware set has units checked out"})
				return
			}
			delete(f.hardware, h.ID)
			w.WriteHeader(http.StatusNoContent)
		}

	case parts[0] == "projects" && len(parts) == 1 && r.Method == http.MethodPost:
		var p apiclient.Project
		json.NewDecoder(r.Body).Decode(&p)
		if _, ok := f.projects[p.ID]; ok {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "project already exists"})
			return
		}
		if p.AuthorizedUsers == nil {
			p.AuthorizedUsers = []string{}
		}
		slices.Sort(p.AuthorizedUsers)
		f.projects[p.ID] = p
		writeJSON(w, http.StatusCreated, p)

	case parts[0] == "projects" && len(parts) >= 2:
		p, ok := f.projects[parts[1]]
		if !ok {
			notFound()
			return
		}
		if len(parts) == 3 && parts[2] == "users" && r.Method == http.MethodPost {
			var in struct {
				UserID string `json:"userid"`
			}
			json.NewDecoder(r.Body).Decode(&in)
			if !slices.Contains(p.AuthorizedUsers, in.UserID) {
				p.AuthorizedUsers = append(p.AuthorizedUsers, in.UserID)
				slices.Sort(p.AuthorizedUsers)
			}
			f.projects[p.ID] = p
		}
		writeJSON(w, http.StatusOK, p)

	default:
		notFound()
	}
}

func (f *fakeAPI) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func getSchema(t *testing.T, r resource.Resource) resourceschema.Schema {
	t.Helper()
	var resp resource.SchemaResponse
	r.Schema(context.Background(), resource.SchemaRequest{}, &resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("Schema: %v", resp.Diagnostics)
	}
	return resp.Schema
}

// objectValue builds a raw value of the schema's object type.
func objectValue(schm resourceschema.Schema, attrs map[string]tftypes.Value) tftypes.Value {
	return tftypes.NewValue(schm.Type().TerraformType(context.Background()), attrs)
}

// emptyState returns a null-initialised state with the schema set.
func emptyState(schm resourceschema.Schema) tfsdk.State {
	return tfsdk.State{Schema: schm, Raw: tftypes.NewValue(schm.Type().TerraformType(context.Background()), nil)}
}

// configureResource injects client into the resource; fails the test on error.
func configureResource(t *testing.T, r resource.Resource, client *apiclient.Client) {
	t.Helper()
	rc, ok := r.(resource.ResourceWithConfigure)
	if !ok {
		t.Fatal("resource does not implement ResourceWithConfigure")
	}
	var resp resource.ConfigureResponse
	rc.Configure(context.Background(), resource.ConfigureRequest{ProviderData: client}, &resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("Configure: %v", resp.Diagnostics)
	}
}

func str(v string) tftypes.Value { return tftypes.NewValue(tftypes.String, v) }

var unknownString = tftypes.NewValue(tftypes.String, tftypes.UnknownValue)
