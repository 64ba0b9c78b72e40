package platform

import (
	"testing"

	"github.com/msto63/mSYS/internal/sysmgr/msg"
)

func TestSimulated(t *testing.T) {
	p := NewSimulated()
	if p.Action() != ActionNone {
		t.Errorf("Action() = %q before any call", p.Action())
	}
	if err := p.RebootToUpdate(msg.UpdateRecovery); err != nil {
		t.Fatal(err)
	}
	if p.Action() != ActionRebootToUpdate || p.UpdateReason() != msg.UpdateRecovery {
		t.Errorf("Action() = %q, reason %v", p.Action(), p.UpdateReason())
	}
	_ = p.SetCellularPower(true)
	if !p.CellularPowered() {
		t.Error("cellular not powered")
	}
}

func TestBatteryAndDisk(t *testing.T) {
	b := NewBattery(msg.BatteryNormal, msg.BatteryCharging)
	b.Set(msg.BatteryShutdown, msg.BatteryDischarging)
	if b.Level() != msg.BatteryShutdown || b.State() != msg.BatteryDischarging {
		t.Errorf("battery = %v/%v", b.Level(), b.State())
	}

	d := &Disk{}
	_ = d.Suspend()
	if !d.Suspended() {
		t.Error("disk not suspended")
	}
	_ = d.Activate()
	if d.Suspended() {
		t.Error("disk still suspended")
	}
}

func TestHostSampler(t *testing.T) {
	load, err := HostSampler{}.Sample()
	if err != nil {
		t.Skipf("cpu stats unavailable: %v", err)
	}
	if load < 0 || load > 100 {
		t.Errorf("Sample() = %v, want 0..100", load)
	}
}
