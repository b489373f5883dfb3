package config_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rrrd/rrr/services/config"
	"github.com/rrrd/rrr/services/storage/storagetest"
)

type SectionA struct {
	Option1 string `toml:"option-1" override:"option-1"`
}

func (a SectionA) Validate() error {
	if a.Option1 == "invalid" {
		return errors.New("invalid option-1")
	}
	return nil
}

type SectionB struct {
	Option2  string `toml:"option-2" override:"option-2"`
	Password string `toml:"password" override:"password,redact"`
}

type SectionC struct {
	Name    string `toml:"name" override:"name"`
	Option3 int    `toml:"option-3" override:"option-3"`
}

type TestConfig struct {
	SectionA  SectionA   `override:"section-a"`
	SectionB  SectionB   `override:"section-b"`
	SectionCs []SectionC `override:"section-c,element-key=name"`
}

func openTestService(testConfig interface{}, updates chan config.ConfigUpdate) *config.Service {
	service := config.NewService(testConfig, nil, updates)
	service.StorageService = storagetest.New()
	if err := service.Open(); err != nil {
		panic(err)
	}
	return service
}

// TestService_UpdateSection exercises the section-update path that used
// to sit behind POST /config/<section>/<element>: set/delete on a
// scalar section, add to a list section, and validation/type-conversion
// failures along the way.
func TestService_UpdateSection(t *testing.T) {
	testConfig := &TestConfig{
		SectionA: SectionA{Option1: "o1"},
		SectionCs: []SectionC{
			{Name: "element1", Option3: 3},
		},
	}
	updates := make(chan config.ConfigUpdate, 10)
	service := openTestService(testConfig, updates)
	defer service.Close()

	// Invalid value is rejected by SectionA.Validate and never reaches
	// the updates channel.
	ua := config.NewUpdateAction("section-a", "")
	ua.Set = map[string]interface{}{"option-1": "invalid"}
	if _, err := service.ApplyUpdateAction(ua); err == nil {
		t.Fatal("expected validation error, got nil")
	}

	ua = config.NewUpdateAction("section-a", "")
	ua.Set = map[string]interface{}{"option-1": "new-o1"}
	if _, err := service.ApplyUpdateAction(ua); err != nil {
		t.Fatal(err)
	}
	cu := <-updates
	if cu.Name != "section-a" {
		t.Fatalf("unexpected update name: %s", cu.Name)
	}
	exp := []interface{}{SectionA{Option1: "new-o1"}}
	if !reflect.DeepEqual(cu.NewConfig, exp) {
		t.Fatalf("unexpected new config: got %v exp %v", cu.NewConfig, exp)
	}

	ua = config.NewUpdateAction("section-c", "")
	ua.Add = map[string]interface{}{"name": "element0", "option-3": 7}
	if _, err := service.ApplyUpdateAction(ua); err != nil {
		t.Fatal(err)
	}
	<-updates

	// Wrong type for option-3 fails conversion.
	ua = config.NewUpdateAction("section-c", "element1")
	ua.Set = map[string]interface{}{"option-3": "bob"}
	if _, err := service.ApplyUpdateAction(ua); err == nil {
		t.Fatal("expected type conversion error, got nil")
	}

	config, err := service.GetConfig("section-c")
	if err != nil {
		t.Fatal(err)
	}
	if len(config["section-c"]) != 2 {
		t.Fatalf("expected 2 section-c elements, got %d", len(config["section-c"]))
	}
}

func TestService_GetConfig_Redacted(t *testing.T) {
	testConfig := &TestConfig{}
	updates := make(chan config.ConfigUpdate, 10)
	service := openTestService(testConfig, updates)
	defer service.Close()

	ua := config.NewUpdateAction("section-b", "")
	ua.Set = map[string]interface{}{"option-2": "o2", "password": "secret"}
	if _, err := service.ApplyUpdateAction(ua); err != nil {
		t.Fatal(err)
	}
	<-updates

	cfg, err := service.GetConfig("section-b")
	if err != nil {
		t.Fatal(err)
	}
	elements := cfg["section-b"]
	if len(elements) != 1 {
		t.Fatalf("expected 1 section-b element, got %d", len(elements))
	}
	if elements[0]["password"] != false {
		t.Fatalf("expected password to be redacted to false, got %v", elements[0]["password"])
	}
}

func TestService_Element(t *testing.T) {
	testConfig := &TestConfig{
		SectionCs: []SectionC{{Name: "x", Option3: 1}, {Name: "y", Option3: 2}},
	}
	updates := make(chan config.ConfigUpdate, 10)
	service := openTestService(testConfig, updates)
	defer service.Close()

	options, ok, err := service.Element("section-c", "y")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected element y to be found")
	}
	if options["option-3"] != int(2) {
		t.Fatalf("unexpected option-3: %v", options["option-3"])
	}

	if _, ok, err := service.Element("section-c", "missing"); err != nil || ok {
		t.Fatalf("expected missing element to be not-found, got ok=%v err=%v", ok, err)
	}
}
