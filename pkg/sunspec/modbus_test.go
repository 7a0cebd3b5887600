package sunspec

import (
	"fmt"
	"testing"
)

func TestACMeterPowerFlowSign(t *testing.T) {

	reader := CreateTestACMeterReader(-1250)

	err := reader.Open()
	if err != nil {
		t.Error(err)
	}

	pf, err := reader.GetPowerFlow()
	if err != nil {
		t.Error(err)
	}
	fmt.Printf("Power flow: %+v\n", pf)

	if pf.CurrentExportPowerWatt != 1250 || pf.CurrentImportPowerWatt != 0 {
		t.Errorf("export/import mismatch: %+v", pf)
	}

	reader.SetPowerFlowWatt(800)
	pf, err = reader.GetPowerFlow()
	if err != nil {
		t.Error(err)
	}
	if pf.CurrentImportPowerWatt != 800 || pf.CurrentExportPowerWatt != 0 {
		t.Errorf("export/import mismatch: %+v", pf)
	}
}

func TestACMeterInfo(t *testing.T) {

	reader := CreateTestACMeterReader(0)

	info, err := reader.GetInfo()
	if err != nil {
		t.Error(err)
	}
	if info.Manufacturer == "" || info.Model == "" {
		t.Errorf("incomplete meter info: %+v", info)
	}
}
