package sunspec

import "sync/atomic"

// TestACMeterReader is an in-memory meter for tests. The reported power
// flow can be changed at any time from another goroutine.
type TestACMeterReader struct {
	powerFlowWatt atomic.Int64
}

func CreateTestACMeterReader(initialPowerWatt float64) *TestACMeterReader {
	reader := &TestACMeterReader{}
	reader.SetPowerFlowWatt(initialPowerWatt)
	return reader
}

func (reader *TestACMeterReader) SetPowerFlowWatt(watt float64) {
	reader.powerFlowWatt.Store(int64(watt))
}

func (reader *TestACMeterReader) Open() error {
	return nil
}

func (reader *TestACMeterReader) Close() error {
	return nil
}

func (reader *TestACMeterReader) Validate() error {
	return nil
}

func (reader *TestACMeterReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "SolarCharge",
		Model:        "Smart Meter TS 100A-1",
		Version:      "1.2",
	}, nil
}

func (reader *TestACMeterReader) GetCurrentPowerFlowWatt() (float64, error) {
	return float64(reader.powerFlowWatt.Load()), nil
}

func (reader *TestACMeterReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	watt, _ := reader.GetCurrentPowerFlowWatt()
	var importPower, exportPower float64
	if watt < 0 {
		exportPower = -watt
	} else {
		importPower = watt
	}
	return &ACMeterPowerFlow{
		CurrentPowerFlowWatt:   watt,
		CurrentImportPowerWatt: importPower,
		CurrentExportPowerWatt: exportPower,
		TotalEnergyExportedKWh: 2770.34,
		TotalEnergyImportedKWh: 550.22,
		Frequency:              50,
		PhaseAVoltage:          234.24,
	}, nil
}

// ensure interface compliance
var _ ACMeterReader = (*TestACMeterReader)(nil)
