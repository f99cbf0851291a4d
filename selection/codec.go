package selection

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so equal selections always
// produce identical bytes in Redis.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("selection: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("selection: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(sel *Selection) ([]byte, error) {
	return encMode.Marshal(sel)
}

func unmarshal(data []byte, sel *Selection) error {
	return decMode.Unmarshal(data, sel)
}
