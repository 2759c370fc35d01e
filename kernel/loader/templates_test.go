package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

const templatesJSON = `{
  "templates": [
    {
      "templateId": "OnDemand-m5",
      "maxNumber": 10,
      "awsHandler": "EC2Fleet",
      "imageId": "ami-12345",
      "vmType": "m5.large",
      "subnetId": "subnet-a,subnet-b",
      "attributes": {"type": ["String", "X86_64"], "ncpus": ["Numeric", "2"]},
      "customField": {"owner": "hpc"}
    },
    {
      "templateId": "Spot-no-role",
      "maxNumber": 5,
      "awsHandler": "SpotFleet",
      "imageId": "ami-12345",
      "vmType": "c5.large",
      "subnetId": "subnet-a"
    },
    {
      "templateId": "Batch",
      "maxNumber": 5,
      "awsHandler": "Batch",
      "imageId": "ami-12345",
      "vmType": "c5.large",
      "subnetId": "subnet-a"
    }
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func validTemplate(id string) *model.ProviderTemplate {
	return &model.ProviderTemplate{
		TemplateId:   id,
		MaxNumber:    4,
		AwsHandler:   model.HandlerRunInstances,
		ImageId:      "ami-12345",
		InstanceType: "t3.medium",
		SubnetId:     "subnet-a",
	}
}

func TestLoadCatalog_SkipsInvalidTemplates(t *testing.T) {
	path := writeTemp(t, "awsprov_templates.json", templatesJSON)

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	list := c.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 valid template, got %d", len(list))
	}

	tmpl, err := c.Get("OnDemand-m5")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tmpl.MaxNumber != 10 || tmpl.InstanceType != "m5.large" {
		t.Errorf("unexpected template content: %+v", tmpl)
	}
	if len(tmpl.Subnets()) != 2 {
		t.Errorf("expected 2 subnets, got %v", tmpl.Subnets())
	}
	if _, ok := tmpl.Extensions.Get("customField"); !ok {
		t.Error("expected unknown properties to be kept as extensions")
	}

	if _, err := c.Get("Batch"); !model.IsNotFound(err) {
		t.Errorf("expected NotFoundError for a template with an unknown handler, got %v", err)
	}
}

func TestLoadCatalog_FileNotFound(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("expected a missing file to load as an empty catalog: %v", err)
	}
	if len(c.List()) != 0 {
		t.Errorf("expected empty catalog")
	}
}

func TestLoadCatalog_Malformed(t *testing.T) {
	path := writeTemp(t, "awsprov_templates.json", `{"templates": [`)
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for malformed templates file")
	}
}

func TestLoadCatalog_Yaml(t *testing.T) {
	path := writeTemp(t, "awsprov_templates.yml", `
templates:
  - templateId: yaml-run
    maxNumber: 3
    awsHandler: RunInstances
    imageId: ami-12345
    vmType: t3.small
    subnetId: subnet-a
    instanceTags:
      team: hpc
`)
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	tmpl, err := c.Get("yaml-run")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tmpl.InstanceTags["team"] != "hpc" {
		t.Errorf("expected instanceTags to be decoded, got %v", tmpl.InstanceTags)
	}
}

func TestCatalog_AddUpdateDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "awsprov_templates.json")
	c := NewCatalog(path)

	if err := c.Add(validTemplate("run-a")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := c.Add(validTemplate("run-a")); !model.IsValidation(err) {
		t.Errorf("expected ValidationError for duplicate add, got %v", err)
	}

	invalid := validTemplate("run-b")
	invalid.MaxNumber = 0
	if err := c.Add(invalid); !model.IsValidation(err) {
		t.Errorf("expected ValidationError for maxNumber 0, got %v", err)
	}

	updated := validTemplate("run-a")
	updated.MaxNumber = 8
	if err := c.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := c.Update(validTemplate("run-z")); !model.IsNotFound(err) {
		t.Errorf("expected NotFoundError for update of unknown template, got %v", err)
	}

	reloaded, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	tmpl, err := reloaded.Get("run-a")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if tmpl.MaxNumber != 8 {
		t.Errorf("expected maxNumber 8 after update, got %d", tmpl.MaxNumber)
	}

	if err := c.Delete("run-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete("run-a"); !model.IsNotFound(err) {
		t.Errorf("expected NotFoundError for second delete, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	var file map[string][]interface{}
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
	if len(file["templates"]) != 0 {
		t.Errorf("expected no templates on disk, got %d", len(file["templates"]))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away")
	}
}

func TestCheckTemplate_BackendRules(t *testing.T) {
	tmpl := validTemplate("spot")
	tmpl.AwsHandler = model.HandlerSpotFleet
	if err := CheckTemplate(tmpl); !model.IsValidation(err) {
		t.Errorf("expected SpotFleet without fleetRole to be rejected, got %v", err)
	}
	tmpl.FleetRole = "arn:aws:iam::123456789012:role/fleet"
	if err := CheckTemplate(tmpl); err != nil {
		t.Errorf("expected valid SpotFleet template, got %v", err)
	}
}
