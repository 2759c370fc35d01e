package subcmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/chunga-ict/hfprovider/kernel/cloud"
	"github.com/chunga-ict/hfprovider/kernel/cloud/cloudtest"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/spf13/cobra"
)

const templatesJSON = `{
  "templates": [
    {
      "templateId": "run-m5",
      "maxNumber": 4,
      "awsHandler": "RunInstances",
      "imageId": "ami-12345",
      "vmType": "m5.large",
      "subnetId": "subnet-a",
      "attributes": {"type": ["String", "X86_64"]}
    }
  ]
}`

const fleetTemplate = `{
  "templateId": "fleet-c5",
  "maxNumber": 10,
  "awsHandler": "EC2Fleet",
  "imageId": "ami-12345",
  "vmTypes": {"c5.large": 1, "c5.xlarge": 2},
  "subnetId": "subnet-a,subnet-b"
}`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// setup points the commands at a fresh conf directory and the fake cloud.
func setup(t *testing.T) (string, *cloudtest.Cloud) {
	t.Helper()
	root := t.TempDir()
	confDir := filepath.Join(root, "conf")
	writeTemp(t, confDir, model.TemplatesFileName, templatesJSON)
	t.Setenv("HF_PROVIDER_CONFDIR", confDir)
	t.Setenv("HF_DB_TYPE", model.DatabaseJSON)

	fake := cloudtest.New()
	previous := newClients
	newClients = func(*model.ProviderConfig) (*cloud.Clients, error) {
		return fake.Clients(), nil
	}
	t.Cleanup(func() { newClients = previous })
	return root, fake
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (map[string]interface{}, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", out.String(), err)
	}
	return doc, nil
}

func machineIdsOf(t *testing.T, status map[string]interface{}) []string {
	t.Helper()
	requests := status["requests"].([]interface{})
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	var ids []string
	for _, m := range requests[0].(map[string]interface{})["machines"].([]interface{}) {
		ids = append(ids, m.(map[string]interface{})["machineId"].(string))
	}
	return ids
}

func TestHostFactoryCalls_Lifecycle(t *testing.T) {
	root, fake := setup(t)

	templates, err := run(t, NewGetAvailableTemplatesCommand(), "--data", "{}")
	if err != nil {
		t.Fatalf("getAvailableTemplates failed: %v", err)
	}
	if n := len(templates["templates"].([]interface{})); n != 1 {
		t.Fatalf("expected 1 template, got %d", n)
	}

	input := writeTemp(t, root, "request.json", `{"template":{"templateId":"run-m5","numMachines":2}}`)
	created, err := run(t, NewRequestMachinesCommand(), "-f", input)
	if err != nil {
		t.Fatalf("requestMachines failed: %v", err)
	}
	requestId := created["requestId"].(string)
	if !strings.HasPrefix(requestId, model.AcquirePrefix) {
		t.Fatalf("unexpected request id %q", requestId)
	}

	statusInput := `{"requests":[{"requestId":"` + requestId + `"}]}`
	status, err := run(t, NewGetRequestStatusCommand(), "--data", statusInput)
	if err != nil {
		t.Fatalf("getRequestStatus failed: %v", err)
	}
	ids := machineIdsOf(t, status)
	if len(ids) != 2 {
		t.Fatalf("expected 2 machines, got %v", ids)
	}
	fake.SetState(ec2.InstanceStateNameRunning, ids...)

	status, err = run(t, NewGetRequestStatusCommand(), "--data", statusInput)
	if err != nil {
		t.Fatalf("getRequestStatus failed: %v", err)
	}
	entry := status["requests"].([]interface{})[0].(map[string]interface{})
	if entry["status"] != "complete" {
		t.Errorf("expected complete, got %v", entry["status"])
	}

	ret, err := run(t, NewRequestReturnMachinesCommand(), "--data", `{"machines":[{"machineId":"`+ids[0]+`"}]}`)
	if err != nil {
		t.Fatalf("requestReturnMachines failed: %v", err)
	}
	if !strings.HasPrefix(ret["requestId"].(string), model.ReturnPrefix) {
		t.Errorf("expected a return request id, got %v", ret["requestId"])
	}

	list, err := run(t, NewListReturnRequestsCommand())
	if err != nil {
		t.Fatalf("listReturnRequests failed: %v", err)
	}
	if n := len(list["requests"].([]interface{})); n != 1 {
		t.Errorf("expected 1 return request, got %d", n)
	}

	if _, err := os.Stat(filepath.Join(root, "work", "request_db.json")); err != nil {
		t.Errorf("expected the json store under the work dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "log", "hfprovider.log")); err != nil {
		t.Errorf("expected a log file under the log dir: %v", err)
	}
}

func TestRequestMachines_Rejections(t *testing.T) {
	_, fake := setup(t)

	if _, err := run(t, NewRequestMachinesCommand()); !model.IsValidation(err) {
		t.Errorf("expected ValidationError without input, got %v", err)
	}
	if _, err := run(t, NewRequestMachinesCommand(), "--data", `{"template":`); !model.IsValidation(err) {
		t.Errorf("expected ValidationError for malformed input, got %v", err)
	}
	_, err := run(t, NewRequestMachinesCommand(), "--data", `{"template":{"templateId":"run-m5","numMachines":9}}`)
	if !model.IsValidation(err) || !strings.Contains(err.Error(), "maxNumber") {
		t.Errorf("expected maxNumber ValidationError, got %v", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("expected no cloud calls, got %v", calls)
	}
}

func TestGetRequestStatus_UnknownRequest(t *testing.T) {
	setup(t)

	status, err := run(t, NewGetRequestStatusCommand(), "--data", `{"requests":[{"requestId":"req-unknown"}]}`)
	if err != nil {
		t.Fatalf("getRequestStatus failed: %v", err)
	}
	entry := status["requests"].([]interface{})[0].(map[string]interface{})
	if entry["status"] != "complete_with_error" {
		t.Errorf("expected complete_with_error for an unknown id, got %v", entry["status"])
	}
}

func TestTemplatesCommands(t *testing.T) {
	root, _ := setup(t)

	input := writeTemp(t, root, "fleet.json", fleetTemplate)
	if _, err := run(t, NewTemplatesCommand(), "add", "-f", input); err != nil {
		t.Fatalf("templates add failed: %v", err)
	}
	if _, err := run(t, NewTemplatesCommand(), "add", "-f", input); !model.IsValidation(err) {
		t.Errorf("expected ValidationError for duplicate add, got %v", err)
	}

	list, err := run(t, NewTemplatesCommand(), "list", "-o", "json")
	if err != nil {
		t.Fatalf("templates list failed: %v", err)
	}
	if n := len(list["templates"].([]interface{})); n != 2 {
		t.Errorf("expected 2 templates, got %d", n)
	}

	shown, err := run(t, NewTemplatesCommand(), "show", "fleet-c5")
	if err != nil {
		t.Fatalf("templates show failed: %v", err)
	}
	if shown["awsHandler"] != "EC2Fleet" {
		t.Errorf("unexpected template: %v", shown)
	}

	if _, err := run(t, NewTemplatesCommand(), "delete", "fleet-c5"); err != nil {
		t.Fatalf("templates delete failed: %v", err)
	}
	if _, err := run(t, NewTemplatesCommand(), "show", "fleet-c5"); !model.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestTemplatesList_Table(t *testing.T) {
	setup(t)

	cmd := NewTemplatesCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list", "-o", "table"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("templates list failed: %v", err)
	}
	if !strings.Contains(out.String(), "run-m5") || !strings.Contains(out.String(), "RunInstances") {
		t.Errorf("expected a table row for run-m5, got:\n%s", out.String())
	}
}

func TestCleanupCommand(t *testing.T) {
	setup(t)

	report, err := run(t, NewCleanupCommand())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if report["requests"].(float64) != 0 {
		t.Errorf("expected nothing to sweep, got %v", report)
	}
}

func TestRequestsList_UnknownType(t *testing.T) {
	setup(t)
	if _, err := run(t, NewRequestsCommand(), "list", "--type", "bogus"); !model.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
