package config

import (
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"

	"github.com/rrrd/rrr/services/config/override"
	"github.com/rrrd/rrr/services/storage"
	"github.com/pkg/errors"
)

// ConfigUpdate is emitted on Service.Updates whenever an instance
// section's resolved configuration changes, so a running instance can
// pick up the new values without a restart.
type ConfigUpdate struct {
	Name      string
	NewConfig []interface{}
}

// Service holds the versioned, storage-backed override layer on top of
// an in-process instance-definition struct (the array-of-tables TOML
// config tree loaded at startup). There is no HTTP surface here: the
// spec scopes configuration as ambient plumbing consumed by the host
// and its instances directly, not as a REST API (CLI front-ends and
// the httpd service are both explicit Non-goals).
type Service struct {
	overrider *override.Overrider
	logger    *log.Logger
	updates   chan<- ConfigUpdate

	// Cached map of section name to element key name
	elementKeys map[string]string

	overrides OverrideDAO

	StorageService interface {
		Store(namespace string) storage.Interface
	}
}

func NewService(config interface{}, l *log.Logger, updates chan<- ConfigUpdate) *Service {
	overrider := override.New(config)
	overrider.OptionNameFunc = override.TomlFieldName
	return &Service{
		overrider: overrider,
		logger:    l,
		updates:   updates,
	}
}

// The storage namespace for all configuration override data.
const configNamespace = "config_overrides"

func (s *Service) Open() error {
	store := s.StorageService.Store(configNamespace)
	s.overrides = newOverrideKV(store)

	elementKeys, err := s.overrider.ElementKeys()
	if err != nil {
		return errors.Wrap(err, "failed to determine the element keys")
	}
	s.elementKeys = elementKeys
	return nil
}

func (s *Service) Close() error {
	close(s.updates)
	return nil
}

type UpdateAction struct {
	section string
	element string

	Set    map[string]interface{} `json:"set"`
	Delete []string               `json:"delete"`
	Add    map[string]interface{} `json:"add"`
	Remove []string               `json:"remove"`
}

func (ua UpdateAction) Validate() error {
	if ua.section == "" {
		return errors.New("must provide section name")
	}
	if !validSectionOrElement.MatchString(ua.section) {
		return fmt.Errorf("invalid section name %q", ua.section)
	}
	if ua.element != "" && !validSectionOrElement.MatchString(ua.element) {
		return fmt.Errorf("invalid element name %q", ua.element)
	}

	sEmpty := len(ua.Set) == 0
	dEmpty := len(ua.Delete) == 0
	aEmpty := len(ua.Add) == 0
	rEmpty := len(ua.Remove) == 0

	if (!sEmpty || !dEmpty) && !(aEmpty && rEmpty) {
		return errors.New("cannot provide both set/delete and add/remove actions in the same update")
	}

	if !aEmpty && ua.element != "" {
		return errors.New("must not provide an element name when adding an a new override")
	}

	if !rEmpty && ua.element != "" {
		return errors.New("must not provide element when removing an override")
	}

	return nil
}

var validSectionOrElement = regexp.MustCompile(`^[-\w+]+$`)

func sectionAndElementToID(section, element string) string {
	return path.Join(section, element)
}

func sectionAndElementFromID(id string) (section, element string) {
	parts := strings.Split(id, "/")
	if l := len(parts); l == 1 {
		section = parts[0]
	} else if l == 2 {
		section = parts[0]
		element = parts[1]
	}
	return
}

// NewUpdateAction constructs an UpdateAction addressed at section/element,
// the programmatic equivalent of POST /config/<section>/<element>
// handler body.
func NewUpdateAction(section, element string) UpdateAction {
	return UpdateAction{section: section, element: element}
}

// ApplyUpdateAction validates and persists ua, then pushes the section's
// newly-resolved configuration onto Service.Updates.
func (s *Service) ApplyUpdateAction(ua UpdateAction) ([]Override, error) {
	overrides, err := s.applyUpdateAction(ua)
	if err != nil {
		return nil, err
	}

	os := convertOverrides(overrides)
	newConfig, err := s.overrider.OverrideAll(os)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update config")
	}
	sectionList := make([]interface{}, len(newConfig[ua.section]))
	for i, sec := range newConfig[ua.section] {
		sectionList[i] = sec.Value()
	}
	s.updates <- ConfigUpdate{Name: ua.section, NewConfig: sectionList}
	return overrides, nil
}

// GetConfig returns the resolved, redacted configuration for every
// section whose name has the given prefix ("" for all sections).
func (s *Service) GetConfig(section string) (map[string][]map[string]interface{}, error) {
	return s.getConfig(section)
}

// Element looks up a single named element within a resolved section,
// the programmatic equivalent of GET /config/<section>/<element>.
func (s *Service) Element(section, element string) (map[string]interface{}, bool, error) {
	config, err := s.getConfig(section)
	if err != nil {
		return nil, false, err
	}
	sectionList, ok := config[section]
	if !ok {
		return nil, false, nil
	}
	elementKey := s.elementKeys[section]
	for _, options := range sectionList {
		if options[elementKey] == element {
			return options, true, nil
		}
	}
	return nil, false, nil
}

func (s *Service) applyUpdateAction(ua UpdateAction) ([]Override, error) {
	if err := ua.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid update action")
	}
	section := ua.section
	element := ua.element
	if len(ua.Remove) == 0 {
		// If we are adding find element value based on the element key
		if len(ua.Add) > 0 {
			key, ok := s.elementKeys[section]
			if !ok {
				return nil, fmt.Errorf("unknown section %q", section)
			}
			elementValue, ok := ua.Add[key]
			if !ok {
				return nil, fmt.Errorf("mising key %q in \"add\" map", key)
			}
			if str, ok := elementValue.(string); !ok {
				return nil, fmt.Errorf("expected %q key to be a string, got %T", key, elementValue)
			} else {
				element = str
			}
		}

		id := sectionAndElementToID(section, element)

		// Apply changes to single override
		o, err := s.overrides.Get(id)
		if err == ErrNoOverrideExists {
			o = Override{
				ID:      id,
				Options: make(map[string]interface{}),
			}
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to retrieve existing overrides for %s", id)
		} else if err == nil && len(ua.Add) > 0 {
			return nil, errors.Wrapf(err, "cannot add new override, override already exists for %s", id)
		}
		if len(ua.Add) > 0 {
			// Drop all previous options and only use the current set.
			o.Options = make(map[string]interface{}, len(ua.Add))
			o.Create = true
			for k, v := range ua.Add {
				o.Options[k] = v
			}
		} else {
			for k, v := range ua.Set {
				o.Options[k] = v
			}
			for _, k := range ua.Delete {
				delete(o.Options, k)
			}
		}

		// Apply the override to a copy first so a value that fails
		// conversion or validation is never stored.
		if _, err := s.overrider.OverrideAll(convertOverrides([]Override{o})); err != nil {
			return nil, errors.Wrap(err, "failed to update config")
		}
		if err := s.overrides.Set(o); err != nil {
			return nil, errors.Wrapf(err, "failed to retrieve existing overrides for %s", id)
		}
		return []Override{o}, nil
	} else {
		// Remove the list of overrides
		for _, r := range ua.Remove {
			id := sectionAndElementToID(section, r)
			if err := s.overrides.Delete(id); err != nil {
				return nil, errors.Wrapf(err, "failed to remove existing override %s", id)
			}
		}
		// Get remaining overrides for the section
		overrides, err := s.overrides.List(section)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get existing overrides for section %s", ua.section)
		}
		return overrides, nil
	}
}

func convertOverrides(overrides []Override) []override.Override {
	os := make([]override.Override, len(overrides))
	for i, o := range overrides {
		section, element := sectionAndElementFromID(o.ID)
		if o.Create {
			element = ""
		}
		os[i] = override.Override{
			Section: section,
			Element: element,
			Options: o.Options,
			Create:  o.Create,
		}
	}
	return os
}

// getConfig returns a map of a fully resolved configuration object.
func (s *Service) getConfig(section string) (map[string][]map[string]interface{}, error) {
	overrides, err := s.overrides.List(section)
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve config overrides")
	}
	os := convertOverrides(overrides)
	sections, err := s.overrider.OverrideAll(os)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply configuration overrides")
	}
	config := make(map[string][]map[string]interface{}, len(sections))
	for name, sectionList := range sections {
		if !strings.HasPrefix(name, section) {
			// Skip sections we did not request
			continue
		}
		for _, sec := range sectionList {
			redacted, err := sec.Redacted()
			if err != nil {
				return nil, errors.Wrap(err, "failed to get redacted configuration data")
			}
			config[name] = append(config[name], redacted)
		}
	}
	return config, nil
}
