package protocol

import (
	"fmt"

	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/wire"
)

// ErrGreetingDenied is returned when the peer's opening 80 bytes don't
// match the expected "REMOTE" magic.
var ErrGreetingDenied = fmt.Errorf("protocol: greeting denied")

// Greet performs the server side of the handshake: the server is the
// greeted party. It reads 80 bytes and only replies
// "VERSIONS" if they equal "REMOTE" (NUL-padded); otherwise it writes
// "DENY" and the caller must close the connection.
func Greet(c *wire.Conn) error {
	var buf [rversions.GreetingSize]byte
	if err := c.ReadFixed(buf[:]); err != nil {
		return err
	}
	if wire.FixedString(buf[:]) != rversions.GreetingHello {
		_ = c.WriteFixed([]byte(rversions.GreetingDeny))
		return ErrGreetingDenied
	}
	return c.WriteFixed([]byte(rversions.GreetingAck))
}
