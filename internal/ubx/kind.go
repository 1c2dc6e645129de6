package ubx

// Family separates the two generations of assistance messages.
type Family uint8

const (
	FamilyMGA Family = iota + 1
	FamilyAID
)

func (f Family) String() string {
	switch f {
	case FamilyMGA:
		return "MGA"
	case FamilyAID:
		return "AID"
	default:
		return "unknown"
	}
}

// Kind is one allow-listed assistance message. The set is closed: KindOf
// never returns a value outside the constants below.
type Kind uint8

const (
	KindMgaGPS Kind = iota + 1
	KindMgaGAL
	KindMgaBDS
	KindMgaQZSS
	KindMgaGLO
	KindMgaANO
	KindMgaINI
	KindAidINI
	KindAidHUI
	KindAidALM
	KindAidEPH
)

// MGA message ids.
const (
	IDMgaGPS   = 0x00
	IDMgaGAL   = 0x02
	IDMgaBDS   = 0x03
	IDMgaQZSS  = 0x05
	IDMgaGLO   = 0x06
	IDMgaANO   = 0x20
	IDMgaFlash = 0x21
	IDMgaINI   = 0x40
	IDMgaAck   = 0x60
)

// AID message ids.
const (
	IDAidINI    = 0x01
	IDAidHUI    = 0x02
	IDAidALM    = 0x30
	IDAidEPH    = 0x31
	IDAidALPSRV = 0x32
	IDAidALP    = 0x50
)

// MGA-INI sub-types found in payload[0].
const (
	IniTypePosXYZ  = 0x00
	IniTypePosLLH  = 0x01
	IniTypeTimeUTC = 0x10
	IniTypeTimeGNS = 0x11
)

var kinds = map[[2]byte]Kind{
	{ClassMGA, IDMgaGPS}:  KindMgaGPS,
	{ClassMGA, IDMgaGAL}:  KindMgaGAL,
	{ClassMGA, IDMgaBDS}:  KindMgaBDS,
	{ClassMGA, IDMgaQZSS}: KindMgaQZSS,
	{ClassMGA, IDMgaGLO}:  KindMgaGLO,
	{ClassMGA, IDMgaANO}:  KindMgaANO,
	{ClassMGA, IDMgaINI}:  KindMgaINI,
	{ClassAID, IDAidINI}:  KindAidINI,
	{ClassAID, IDAidHUI}:  KindAidHUI,
	{ClassAID, IDAidALM}:  KindAidALM,
	{ClassAID, IDAidEPH}:  KindAidEPH,
}

// KindOf classifies a frame against the allow-list.
func KindOf(frame []byte) (Kind, bool) {
	if len(frame) < HeaderLen {
		return 0, false
	}
	k, ok := kinds[[2]byte{frame[2], frame[3]}]
	return k, ok
}

// Family returns the message generation of k.
func (k Kind) Family() Family {
	switch k {
	case KindMgaGPS, KindMgaGAL, KindMgaBDS, KindMgaQZSS, KindMgaGLO, KindMgaANO, KindMgaINI:
		return FamilyMGA
	case KindAidINI, KindAidHUI, KindAidALM, KindAidEPH:
		return FamilyAID
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindMgaGPS:
		return "MGA-GPS"
	case KindMgaGAL:
		return "MGA-GAL"
	case KindMgaBDS:
		return "MGA-BDS"
	case KindMgaQZSS:
		return "MGA-QZSS"
	case KindMgaGLO:
		return "MGA-GLO"
	case KindMgaANO:
		return "MGA-ANO"
	case KindMgaINI:
		return "MGA-INI"
	case KindAidINI:
		return "AID-INI"
	case KindAidHUI:
		return "AID-HUI"
	case KindAidALM:
		return "AID-ALM"
	case KindAidEPH:
		return "AID-EPH"
	default:
		return "unknown"
	}
}

// IsIniTime reports whether frame is an aiding-init time message:
// MGA-INI-TIME_UTC, MGA-INI-TIME_GNSS or AID-INI.
func IsIniTime(frame []byte) bool {
	k, ok := KindOf(frame)
	if !ok {
		return false
	}
	switch k {
	case KindMgaINI:
		p := Payload(frame)
		return len(p) > 0 && (p[0] == IniTypeTimeUTC || p[0] == IniTypeTimeGNS)
	case KindAidINI:
		return true
	default:
		return false
	}
}
