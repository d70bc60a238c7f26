package gpio

import "testing"

func TestMockDriver_WriteThenRead(t *testing.T) {
	m := NewMockDriver()
	if err := m.SetupPin(6, Output); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePin(6, High); err != nil {
		t.Fatal(err)
	}
	if m.Level(6) != High {
		t.Errorf("level = %v, want HIGH", m.Level(6))
	}
}

func TestMockDriver_PullUpDefaultsHigh(t *testing.T) {
	m := NewMockDriver()
	m.SetupPin(10, InputPullUp)
	l, err := m.ReadPin(10)
	if err != nil {
		t.Fatal(err)
	}
	if l != High {
		t.Errorf("pull-up input should idle HIGH, got %v", l)
	}

	m.SetInput(10, Low)
	if l, _ := m.ReadPin(10); l != Low {
		t.Errorf("injected LOW not seen, got %v", l)
	}
}

func TestMockDriver_InjectedLevelSurvivesSetup(t *testing.T) {
	m := NewMockDriver()
	m.SetInput(10, Low)
	m.SetupPin(10, InputPullUp)
	if l, _ := m.ReadPin(10); l != Low {
		t.Errorf("setup must not override an injected level, got %v", l)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevelString(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Error("unexpected level names")
	}
}
