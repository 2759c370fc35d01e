package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/chunga-ict/hfprovider/kernel/provider"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// TemplatesFile is the on-disk layout of the template catalog.
type TemplatesFile struct {
	Templates []*model.ProviderTemplate `json:"templates"`
}

// Catalog holds the provider templates of one templates file.
type Catalog struct {
	Path string

	mu        sync.RWMutex
	templates map[string]*model.ProviderTemplate
	log       *logrus.Entry
}

func NewCatalog(path string) *Catalog {
	return &Catalog{
		Path:      path,
		templates: map[string]*model.ProviderTemplate{},
		log:       logrus.WithField("component", "templates"),
	}
}

// LoadCatalog reads path into a new catalog. A missing file is an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog(path)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// CheckTemplate validates the fields every template needs and that its
// handler is registered and accepts it.
func CheckTemplate(tmpl *model.ProviderTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	backend, err := provider.NewBackend(tmpl.AwsHandler, provider.Deps{})
	if err != nil {
		return model.NewValidationError("template [%s]: %v", tmpl.TemplateId, err)
	}
	return backend.CheckTemplate(tmpl)
}

// Load replaces the catalog content with the file content. Invalid templates
// are logged and left out.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		c.log.Warnf("templates file [%s] does not exist", c.Path)
		c.mu.Lock()
		c.templates = map[string]*model.ProviderTemplate{}
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read templates [%s]", c.Path)
	}

	file, err := decodeTemplates(c.Path, data)
	if err != nil {
		return err
	}

	loaded := make(map[string]*model.ProviderTemplate, len(file.Templates))
	for i, tmpl := range file.Templates {
		if tmpl == nil {
			continue
		}
		if err := CheckTemplate(tmpl); err != nil {
			c.log.WithError(err).Warnf("skipping invalid template #%d in [%s]", i, c.Path)
			continue
		}
		if _, found := loaded[tmpl.TemplateId]; found {
			c.log.Warnf("duplicate template [%s] in [%s], keeping the first", tmpl.TemplateId, c.Path)
			continue
		}
		loaded[tmpl.TemplateId] = tmpl
	}

	c.mu.Lock()
	c.templates = loaded
	c.mu.Unlock()
	c.log.Debugf("loaded %d templates from [%s]", len(loaded), c.Path)
	return nil
}

func decodeTemplates(path string, data []byte) (*TemplatesFile, error) {
	file := &TemplatesFile{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yml" || ext == ".yaml" {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrapf(err, "failed to parse templates [%s]", path)
		}
		converted, err := json.Marshal(jsonCompatible(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse templates [%s]", path)
		}
		data = converted
	}
	if err := json.Unmarshal(data, file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse templates [%s]", path)
	}
	return file, nil
}

// jsonCompatible turns yaml.v2 map[interface{}]interface{} nodes into
// string keyed maps.
func jsonCompatible(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = jsonCompatible(t[i])
		}
		return t
	default:
		return v
	}
}

func (c *Catalog) Get(templateId string) (*model.ProviderTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok := c.templates[templateId]
	if !ok {
		return nil, model.NewNotFoundError("template", templateId)
	}
	return tmpl, nil
}

// List returns every template ordered by templateId.
func (c *Catalog) List() []*model.ProviderTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.ProviderTemplate, 0, len(c.templates))
	for _, tmpl := range c.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TemplateId < out[j].TemplateId
	})
	return out
}

// Add validates and stores a new template, then saves the file.
func (c *Catalog) Add(tmpl *model.ProviderTemplate) error {
	if err := CheckTemplate(tmpl); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.templates[tmpl.TemplateId]; found {
		return model.NewValidationError("template [%s] already exists", tmpl.TemplateId)
	}
	c.templates[tmpl.TemplateId] = tmpl
	if err := c.saveUnsafe(); err != nil {
		delete(c.templates, tmpl.TemplateId)
		return err
	}
	c.log.Infof("added template [%s]", tmpl.TemplateId)
	return nil
}

// Update replaces an existing template, then saves the file.
func (c *Catalog) Update(tmpl *model.ProviderTemplate) error {
	if err := CheckTemplate(tmpl); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, found := c.templates[tmpl.TemplateId]
	if !found {
		return model.NewNotFoundError("template", tmpl.TemplateId)
	}
	c.templates[tmpl.TemplateId] = tmpl
	if err := c.saveUnsafe(); err != nil {
		c.templates[tmpl.TemplateId] = previous
		return err
	}
	c.log.Infof("updated template [%s]", tmpl.TemplateId)
	return nil
}

// Delete removes a template, then saves the file.
func (c *Catalog) Delete(templateId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, found := c.templates[templateId]
	if !found {
		return model.NewNotFoundError("template", templateId)
	}
	delete(c.templates, templateId)
	if err := c.saveUnsafe(); err != nil {
		c.templates[templateId] = previous
		return err
	}
	c.log.Infof("deleted template [%s]", templateId)
	return nil
}

func (c *Catalog) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnsafe()
}

// saveUnsafe writes the catalog as JSON through a temp file and rename. JSON
// is valid YAML, so yaml templates files stay readable.
func (c *Catalog) saveUnsafe() error {
	file := TemplatesFile{Templates: make([]*model.ProviderTemplate, 0, len(c.templates))}
	for _, tmpl := range c.templates {
		file.Templates = append(file.Templates, tmpl)
	}
	sort.Slice(file.Templates, func(i, j int) bool {
		return file.Templates[i].TemplateId < file.Templates[j].TemplateId
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal templates")
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return errors.Wrap(err, "failed to create templates directory")
	}
	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write templates")
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		return errors.Wrap(err, "failed to replace templates")
	}
	return nil
}
