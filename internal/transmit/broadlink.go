package transmit

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Initial AES key/IV shared by all unpaired Broadlink devices. A successful
// auth exchange replaces the key with a per-session one.
var (
	blInitialKey = []byte{
		0x09, 0x76, 0x28, 0x34, 0x3f, 0xe9, 0x9e, 0x23,
		0x76, 0x5c, 0x15, 0x13, 0xac, 0xcf, 0x8b, 0x02,
	}
	blIV = []byte{
		0x56, 0x2e, 0x17, 0x99, 0x6d, 0x09, 0x3d, 0x28,
		0xdd, 0xb3, 0xba, 0x69, 0x5a, 0x2e, 0x6f, 0x58,
	}
)

const (
	blPort        = 80
	blCmdHello    = 0x0006
	blCmdAuth     = 0x0065
	blCmdCommand  = 0x006a
	blSendDataCmd = 0x02 // first byte of a send_data command payload
)

// Session is an authenticated Broadlink pairing, cacheable across restarts
// so the handshake runs once per device rather than once per boot.
type Session struct {
	DeviceType uint16 `json:"device_type"`
	MAC        []byte `json:"mac"`
	ID         []byte `json:"id"`
	Key        []byte `json:"key"`
}

// SessionCache persists Broadlink sessions keyed by host. GetSession returns
// (nil, nil) when no session is stored.
type SessionCache interface {
	GetSession(host string) (*Session, error)
	PutSession(host string, s *Session) error
}

// Broadlink transmits IR payloads to a Broadlink RM blaster addressed
// directly over UDP.
type Broadlink struct {
	host   string
	conn   *net.UDPConn
	cache  SessionCache
	logger *slog.Logger

	mu      sync.Mutex
	devType uint16
	mac     [6]byte
	id      [4]byte
	key     []byte
	count   uint16
}

// NewBroadlink connects to the blaster at host and performs the discovery
// and auth handshake, reusing a cached session when one exists. cache may
// be nil, in which case every start re-authenticates.
func NewBroadlink(ctx context.Context, host string, cache SessionCache, logger *slog.Logger) (*Broadlink, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, blPort))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	d := &Broadlink{
		host:   host,
		conn:   conn,
		cache:  cache,
		logger: logger.With("component", "broadlink", "host", host),
	}

	if cache != nil {
		if s, err := cache.GetSession(host); err != nil {
			d.logger.Warn("session cache read failed", "err", err)
		} else if s != nil && len(s.Key) == aes.BlockSize && len(s.ID) == 4 && len(s.MAC) == 6 {
			d.devType = s.DeviceType
			copy(d.mac[:], s.MAC)
			copy(d.id[:], s.ID)
			d.key = s.Key
			d.logger.Debug("reusing cached session", "device_type", fmt.Sprintf("0x%04X", s.DeviceType))
			return d, nil
		}
	}

	if err := d.hello(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("broadlink discovery: %w", err)
	}
	if err := d.auth(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("broadlink auth: %w", err)
	}

	if cache != nil {
		s := &Session{
			DeviceType: d.devType,
			MAC:        append([]byte(nil), d.mac[:]...),
			ID:         append([]byte(nil), d.id[:]...),
			Key:        append([]byte(nil), d.key...),
		}
		if err := cache.PutSession(host, s); err != nil {
			d.logger.Warn("session cache write failed", "err", err)
		}
	}

	return d, nil
}

// Transmit sends an encapsulated IR payload through the blaster.
func (d *Broadlink) Transmit(ctx context.Context, payload []byte) error {
	data := make([]byte, 0, 4+len(payload))
	data = append(data, blSendDataCmd, 0x00, 0x00, 0x00)
	data = append(data, payload...)

	if _, err := d.request(ctx, blCmdCommand, data); err != nil {
		return &Error{Target: d.host, Err: err}
	}
	return nil
}

func (d *Broadlink) Close() error {
	return d.conn.Close()
}

// hello performs the discovery exchange to learn the device type and MAC,
// both required fields of every subsequent packet header.
func (d *Broadlink) hello(ctx context.Context) error {
	packet := make([]byte, 0x30)
	now := time.Now()
	_, tzOffset := now.Zone()
	binary.LittleEndian.PutUint32(packet[0x08:], uint32(tzOffset/3600))
	binary.LittleEndian.PutUint16(packet[0x0c:], uint16(now.Year()))
	packet[0x0e] = byte(now.Second())
	packet[0x0f] = byte(now.Minute())
	packet[0x10] = byte(now.Hour())
	packet[0x11] = byte(now.Weekday())
	packet[0x12] = byte(now.Day())
	packet[0x13] = byte(now.Month())
	packet[0x26] = blCmdHello & 0xFF

	checksum := packetChecksum(packet)
	binary.LittleEndian.PutUint16(packet[0x20:], checksum)

	resp, err := d.exchange(ctx, packet)
	if err != nil {
		return err
	}
	if len(resp) < 0x40 {
		return fmt.Errorf("short hello response: %d bytes", len(resp))
	}

	d.devType = binary.LittleEndian.Uint16(resp[0x34:])
	for i := 0; i < 6; i++ {
		d.mac[i] = resp[0x3a+5-i] // wire order is reversed
	}
	d.logger.Debug("device discovered",
		"device_type", fmt.Sprintf("0x%04X", d.devType),
		"mac", fmt.Sprintf("% X", d.mac[:]))
	return nil
}

// auth negotiates the per-session key and device id.
func (d *Broadlink) auth(ctx context.Context) error {
	payload := make([]byte, 0x50)
	for i := 0x04; i < 0x13; i++ {
		payload[i] = 0x31
	}
	payload[0x1e] = 0x01
	payload[0x2d] = 0x01
	copy(payload[0x30:], "gree-ir-home")

	d.key = nil // force the initial key for this exchange
	resp, err := d.request(ctx, blCmdAuth, payload)
	if err != nil {
		return err
	}
	if len(resp) < 0x14 {
		return fmt.Errorf("short auth response: %d bytes", len(resp))
	}

	copy(d.id[:], resp[:0x04])
	d.key = append([]byte(nil), resp[0x04:0x14]...)
	d.logger.Info("authenticated")
	return nil
}

// request sends one command packet and returns the decrypted response
// payload. Serialized: the device answers packets one at a time.
func (d *Broadlink) request(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.key
	if key == nil {
		key = blInitialKey
	}

	// Pad to the AES block size before encrypting.
	padded := payload
	if rem := len(payload) % aes.BlockSize; rem != 0 {
		padded = append(append([]byte(nil), payload...), make([]byte, aes.BlockSize-rem)...)
	}
	encrypted, err := blEncrypt(key, padded)
	if err != nil {
		return nil, err
	}

	d.count++
	packet := make([]byte, 0x38, 0x38+len(encrypted))
	copy(packet, []byte{0x5a, 0xa5, 0xaa, 0x55, 0x5a, 0xa5, 0xaa, 0x55})
	binary.LittleEndian.PutUint16(packet[0x24:], d.devType)
	binary.LittleEndian.PutUint16(packet[0x26:], command)
	binary.LittleEndian.PutUint16(packet[0x28:], d.count)
	for i := 0; i < 6; i++ {
		packet[0x2a+i] = d.mac[5-i]
	}
	copy(packet[0x30:], d.id[:])
	binary.LittleEndian.PutUint16(packet[0x34:], packetChecksum(padded))
	packet = append(packet, encrypted...)
	binary.LittleEndian.PutUint16(packet[0x20:], packetChecksum(packet))

	resp, err := d.exchange(ctx, packet)
	if err != nil {
		return nil, err
	}
	if len(resp) < 0x38 {
		return nil, fmt.Errorf("short response: %d bytes", len(resp))
	}
	if errCode := binary.LittleEndian.Uint16(resp[0x22:]); errCode != 0 {
		return nil, fmt.Errorf("device error 0x%04X", errCode)
	}

	return blDecrypt(key, resp[0x38:])
}

// exchange writes one packet and reads one reply, honoring the context
// deadline (5s default).
func (d *Broadlink) exchange(ctx context.Context, packet []byte) ([]byte, error) {
	deadline := time.Now().Add(5 * time.Second)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	if err := d.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := d.conn.Write(packet); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	buf := make([]byte, 2048)
	n, err := d.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf[:n], nil
}

// packetChecksum is the Broadlink header checksum: 0xBEAF plus the byte sum,
// truncated to 16 bits. The checksum field itself must be zero when summed.
func packetChecksum(data []byte) uint16 {
	sum := uint32(0xBEAF)
	for _, b := range data {
		sum += uint32(b)
	}
	return uint16(sum)
}

func blEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, blIV).CryptBlocks(out, data)
	return out, nil
}

func blDecrypt(key, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("encrypted payload not block aligned: %d bytes", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	if len(data) > 0 {
		cipher.NewCBCDecrypter(block, blIV).CryptBlocks(out, data)
	}
	return out, nil
}
