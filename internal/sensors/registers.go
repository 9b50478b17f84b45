// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "fmt"

// MPU-6050 register addresses used by the driver.
const (
	RegSmplrtDiv   = 0x19
	RegConfig      = 0x1A
	RegGyroConfig  = 0x1B
	RegAccelConfig = 0x1C
	RegAccelXoutH  = 0x3B
	RegTempOutH    = 0x41
	RegGyroXoutH   = 0x43
	RegPwrMgmt1    = 0x6B
	RegPwrMgmt2    = 0x6C
	RegWhoAmI      = 0x75

	// WhoAmI is the identity byte of an MPU-6050 at either strap address.
	WhoAmI = 0x68

	pwrSleep = 0x40
)

// BitField describes one field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is register map metadata for dumps and the web debugger.
type RegisterInfo struct {
	Address     byte       `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Hex returns the address as 0xNN.
func (r RegisterInfo) Hex() string {
	return fmt.Sprintf("0x%02X", r.Address)
}

// Readable reports whether the register can be read back.
func (r RegisterInfo) Readable() bool {
	return r.Access == "R" || r.Access == "RW"
}

// Registers returns the MPU-6050 register map in address order.
func Registers() []RegisterInfo {
	return []RegisterInfo{
		// Self test
		{Address: 0x0D, Name: "SELF_TEST_X", Description: "Self-test X trim", Access: "RW"},
		{Address: 0x0E, Name: "SELF_TEST_Y", Description: "Self-test Y trim", Access: "RW"},
		{Address: 0x0F, Name: "SELF_TEST_Z", Description: "Self-test Z trim", Access: "RW"},
		{Address: 0x10, Name: "SELF_TEST_A", Description: "Self-test accel trim low bits", Access: "RW"},

		// Configuration
		{Address: RegSmplrtDiv, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Gyro_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: RegConfig, Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "EXT_SYNC_SET", Description: "External FSYNC pin sampling", Values: "0=Disabled"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=260Hz, 1=184Hz, 2=94Hz, 3=44Hz, 4=21Hz, 5=10Hz, 6=5Hz"},
			}},
		{Address: RegGyroConfig, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XG_ST", Description: "X Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YG_ST", Description: "Y Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZG_ST", Description: "Z Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: RegAccelConfig, Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XA_ST", Description: "X Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YA_ST", Description: "Y Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZA_ST", Description: "Z Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: 0x1F, Name: "MOT_THR", Description: "Motion Detection Threshold", Access: "RW", Default: "0x00"},
		{Address: 0x23, Name: "FIFO_EN", Description: "FIFO Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "TEMP_FIFO_EN", Description: "Temperature to FIFO"},
				{Bits: "6:4", Name: "XYZG_FIFO_EN", Description: "Gyro axes to FIFO"},
				{Bits: "3", Name: "ACCEL_FIFO_EN", Description: "Accelerometer to FIFO"},
			}},

		// Auxiliary I2C master
		{Address: 0x24, Name: "I2C_MST_CTRL", Description: "I2C Master Control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "MULT_MST_EN", Description: "Multi-master enable", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "WAIT_FOR_ES", Description: "Wait for external sensor", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3:0", Name: "I2C_MST_CLK", Description: "I2C Master clock speed", Values: "0=348kHz ... 15=267kHz"},
			}},
		{Address: 0x25, Name: "I2C_SLV0_ADDR", Description: "I2C Slave 0 Address", Access: "RW", Default: "0x00"},
		{Address: 0x26, Name: "I2C_SLV0_REG", Description: "I2C Slave 0 Register", Access: "RW", Default: "0x00"},
		{Address: 0x27, Name: "I2C_SLV0_CTRL", Description: "I2C Slave 0 Control", Access: "RW", Default: "0x00"},

		// Interrupts
		{Address: 0x37, Name: "INT_PIN_CFG", Description: "INT Pin / Bypass Enable Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT_LEVEL", Description: "INT pin active low", Values: "0=Active high, 1=Active low"},
				{Bits: "5", Name: "LATCH_INT_EN", Description: "Latch INT pin", Values: "0=50us pulse, 1=Latch until cleared"},
				{Bits: "1", Name: "I2C_BYPASS_EN", Description: "Auxiliary I2C bypass", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: 0x38, Name: "INT_ENABLE", Description: "Interrupt Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "FIFO_OFLOW_EN", Description: "FIFO overflow interrupt"},
				{Bits: "0", Name: "DATA_RDY_EN", Description: "Data ready interrupt"},
			}},
		{Address: 0x3A, Name: "INT_STATUS", Description: "Interrupt Status", Access: "R", Default: "0x00"},

		// Sensor data
		{Address: RegAccelXoutH, Name: "ACCEL_XOUT_H", Description: "Accelerometer X-Axis High Byte", Access: "R"},
		{Address: 0x3C, Name: "ACCEL_XOUT_L", Description: "Accelerometer X-Axis Low Byte", Access: "R"},
		{Address: 0x3D, Name: "ACCEL_YOUT_H", Description: "Accelerometer Y-Axis High Byte", Access: "R"},
		{Address: 0x3E, Name: "ACCEL_YOUT_L", Description: "Accelerometer Y-Axis Low Byte", Access: "R"},
		{Address: 0x3F, Name: "ACCEL_ZOUT_H", Description: "Accelerometer Z-Axis High Byte", Access: "R"},
		{Address: 0x40, Name: "ACCEL_ZOUT_L", Description: "Accelerometer Z-Axis Low Byte", Access: "R"},
		{Address: RegTempOutH, Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: 0x42, Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: RegGyroXoutH, Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: 0x44, Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: 0x45, Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: 0x46, Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: 0x47, Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: 0x48, Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},

		// Control
		{Address: 0x68, Name: "SIGNAL_PATH_RESET", Description: "Signal Path Reset", Access: "W"},
		{Address: 0x6A, Name: "USER_CTRL", Description: "User Control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6", Name: "FIFO_EN", Description: "Enable FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "I2C_MST_EN", Description: "Enable I2C Master", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "FIFO_RESET", Description: "Reset FIFO", Values: "1=Reset"},
				{Bits: "0", Name: "SIG_COND_RESET", Description: "Reset signal paths", Values: "1=Reset"},
			}},
		{Address: RegPwrMgmt1, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x40",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Device reset", Values: "1=Reset device"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Awake, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle mode", Values: "0=Disabled, 1=Cycle"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL X gyro"},
			}},
		{Address: RegPwrMgmt2, Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:6", Name: "LP_WAKE_CTRL", Description: "Low power wake frequency"},
				{Bits: "5:3", Name: "STBY_XYZA", Description: "Accelerometer axes standby"},
				{Bits: "2:0", Name: "STBY_XYZG", Description: "Gyro axes standby"},
			}},
		{Address: 0x72, Name: "FIFO_COUNTH", Description: "FIFO Count High Byte", Access: "R"},
		{Address: 0x73, Name: "FIFO_COUNTL", Description: "FIFO Count Low Byte", Access: "R"},
		{Address: 0x74, Name: "FIFO_R_W", Description: "FIFO Read Write", Access: "RW"},

		// Identification
		{Address: RegWhoAmI, Name: "WHO_AM_I", Description: "Device ID (should be 0x68)", Access: "R", Default: "0x68"},
	}
}

// LookupRegister finds a register by name or by 0xNN address.
func LookupRegister(key string) (RegisterInfo, bool) {
	for _, r := range Registers() {
		if r.Name == key || r.Hex() == key {
			return r, true
		}
	}
	return RegisterInfo{}, false
}
