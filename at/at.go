package at

import "fmt"

const (
	// Terminal Control
	CRLF = "\r\n"

	// ReplyOK is the literal sentinel the ESP8266 emits after a command
	// succeeds in no-echo mode.
	ReplyOK = "\r\nOK\r\n"

	// ConnectHead is the first byte of the unsolicited "CONNECT"
	// notification that follows a successful AT+CIPSTART.
	ConnectHead = 'C'

	// IPDHeader precedes an inbound TCP payload: +IPD,<length>:<payload>.
	IPDHeader = "+IPD,"

	// Commands
	CmdEchoOff = "ATE0" + CRLF
	CmdClose   = "AT+CIPCLOSE" + CRLF
)

// CmdStart builds the single-connection TCP open command. The host must
// already carry its surrounding quotes.
func CmdStart(host, port string) string {
	return fmt.Sprintf(`AT+CIPSTART="TCP",%s,%s`+CRLF, host, port)
}

// CmdSend announces n raw payload bytes to follow.
func CmdSend(n int) string {
	return fmt.Sprintf("AT+CIPSEND=%d"+CRLF, n)
}
