package sunspec

import (
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type modbusClient struct {
	client     *modbus.ModbusClient
	instrument []Instrument
}

// Instrument observes low level modbus access timings.
type Instrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader modbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (reader modbusClient) applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader modbusClient) applySFint16(number int16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader modbusClient) applySFuint32(number uint32, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader modbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer recordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader modbusClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer recordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, regType)
}

func (reader modbusClient) readUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	defer recordTimer("ReadUint32", reader.instrument)()
	return reader.client.ReadUint32(addr, regType)
}

func (reader modbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer recordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

func recordTimer(name string, instrument []Instrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *Instrument {
	return &Instrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Sugar().Debugf("modbus [%s]: %d millis", fnName, readTime.Milliseconds())
		},
	}
}

// SunSpec model chain survey

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == 0xFFFF
}

func surveyModbusBlock(client *modbus.ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	wellKnownValue, err := client.ReadRegister(baseAddr, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	length, err := client.ReadRegister(baseAddr+1, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       wellKnownValue,
		length:   length,
		baseAddr: baseAddr,
	}, nil
}
