package net

// Telnet command bytes.
const (
	telnetIAC  byte = 255
	telnetDONT byte = 254
	telnetDO   byte = 253
	telnetWONT byte = 252
	telnetWILL byte = 251
	telnetSB   byte = 250
	telnetSE   byte = 240
)

type telnetState uint8

const (
	tsData telnetState = iota
	tsIAC              // saw IAC
	tsOption           // saw IAC + WILL/WONT/DO/DONT, waiting for option byte
	tsSub              // inside IAC SB ... IAC SE
	tsSubIAC           // saw IAC inside a subnegotiation
)

// telnetParser strips telnet commands from the inbound stream and produces
// refusal replies. The client supports no options: every WILL is answered
// with DONT and every DO with WONT. State carries across chunks, so a
// command split by a read boundary is completed on the next Feed.
//
// Not safe for concurrent use; owned by the session's read loop.
type telnetParser struct {
	state telnetState
	cmd   byte
}

// Feed consumes one chunk and returns the data bytes with all commands
// removed, plus the reply bytes to write back (nil when none).
func (p *telnetParser) Feed(chunk []byte) (clean, reply []byte) {
	clean = make([]byte, 0, len(chunk))
	for _, b := range chunk {
		switch p.state {
		case tsData:
			if b == telnetIAC {
				p.state = tsIAC
				continue
			}
			clean = append(clean, b)

		case tsIAC:
			switch b {
			case telnetIAC:
				// escaped 255 data byte
				clean = append(clean, b)
				p.state = tsData
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				p.cmd = b
				p.state = tsOption
			case telnetSB:
				p.state = tsSub
			default:
				// GA, NOP and friends carry no payload
				p.state = tsData
			}

		case tsOption:
			switch p.cmd {
			case telnetWILL:
				reply = append(reply, telnetIAC, telnetDONT, b)
			case telnetDO:
				reply = append(reply, telnetIAC, telnetWONT, b)
			}
			p.state = tsData

		case tsSub:
			if b == telnetIAC {
				p.state = tsSubIAC
			}

		case tsSubIAC:
			if b == telnetSE {
				p.state = tsData
			} else {
				p.state = tsSub
			}
		}
	}
	return clean, reply
}

// Pending reports whether a command is incomplete at the end of the last chunk.
func (p *telnetParser) Pending() bool {
	return p.state != tsData
}
