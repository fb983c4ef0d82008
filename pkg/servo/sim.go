package servo

import (
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Control table addresses used by the simulator.
var (
	simModel    = feetech.RegModelNumber.Address
	simID       = feetech.RegID.Address
	simTorque   = feetech.RegTorqueEnable.Address
	simGoal     = feetech.RegGoalPosition.Address
	simSpeed    = feetech.RegGoalVelocity.Address
	simLock     = feetech.RegLock.Address
	simPosition = feetech.RegPresentPosition.Address
	simVelocity = feetech.RegPresentVelocity.Address
	simLoad     = feetech.RegPresentLoad.Address
	simVoltage  = feetech.RegPresentVoltage.Address
	simTemp     = feetech.RegPresentTemp.Address
	simMoving   = feetech.RegMoving.Address
	simCurrent  = feetech.RegPresentCurrent.Address
)

const (
	simHome         = 2048
	simMaxSpeed     = 3400
	simIdleCurrent  = 5
	simMoveCurrent  = 40
	simMoveLoad     = 120
	simSupplyVolts  = 74
	simAmbientTempC = 32
)

var errPortClosed = errors.New("sim port closed")

// SimBus simulates STS3215 servos on one bus. Each port opened from it is a
// feetech.Transport sharing the same servos, so reconnecting keeps servo
// state. IDs with no servo stay silent and the bus times out as it would on
// hardware.
type SimBus struct {
	mu     sync.Mutex
	proto  *feetech.Protocol
	servos map[int]*simServo
	now    func() time.Time
}

type simServo struct {
	proto  *feetech.Protocol
	regs   [256]byte
	status feetech.StatusError

	// Start of the current move.
	from    int
	startAt time.Time
}

// NewSimBus creates a simulated bus with servos at ids.
func NewSimBus(ids ...int) *SimBus {
	b := &SimBus{
		proto:  feetech.NewProtocol(feetech.ProtocolSTS),
		servos: make(map[int]*simServo, len(ids)),
		now:    time.Now,
	}
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

// SetClock replaces the time source used for motion.
func (b *SimBus) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Add attaches a factory-default servo at id.
func (b *SimBus) Add(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &simServo{proto: b.proto}
	s.setWord(simModel, uint16(feetech.ModelSTS3215.Number))
	s.regs[simID] = byte(id)
	s.regs[simLock] = 1
	s.regs[simVoltage] = simSupplyVolts
	s.regs[simTemp] = simAmbientTempC
	s.setWord(simGoal, simHome)
	s.setWord(simPosition, simHome)
	s.setWord(simCurrent, simIdleCurrent)
	s.from = simHome
	b.servos[id] = s
}

// IDs returns the IDs of the attached servos in ascending order.
func (b *SimBus) IDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int, 0, len(b.servos))
	for id := range b.servos {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetStatusError makes every response from id carry status.
func (b *SimBus) SetStatusError(id int, status feetech.StatusError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.servos[id]; ok {
		s.status = status
	}
}

// Register returns the raw byte at addr in the control table of id.
func (b *SimBus) Register(id int, addr byte) (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.servos[id]
	if !ok {
		return 0, false
	}
	s.advance(b.now())
	return s.regs[addr], true
}

// Transport opens a new port on the bus. The port name is ignored.
func (b *SimBus) Transport(string) (feetech.Transport, error) {
	return &simPort{bus: b}, nil
}

// handle executes one instruction packet and returns the response bytes.
// Instruction packets share the response framing, so Decode leaves the
// instruction byte in Packet.Error.
func (b *SimBus) handle(packet []byte) []byte {
	req, _, err := b.proto.Decode(packet)
	if err != nil || req.ID == feetech.BroadcastID {
		return nil
	}
	id, inst, params := req.ID, byte(req.Error), req.Parameters

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.servos[int(id)]
	if !ok {
		return nil
	}
	now := b.now()
	s.advance(now)

	switch inst {
	case feetech.InstPing:
		return b.respond(id, s.status, nil)

	case feetech.InstRead:
		if len(params) != 2 || int(params[0])+int(params[1]) > len(s.regs) {
			return b.respond(id, s.status|feetech.ErrInstruction, nil)
		}
		addr, n := int(params[0]), int(params[1])
		return b.respond(id, s.status, slices.Clone(s.regs[addr:addr+n]))

	case feetech.InstWrite:
		if len(params) < 2 || int(params[0])+len(params)-1 > len(s.regs) {
			return b.respond(id, s.status|feetech.ErrInstruction, nil)
		}
		addr, data := params[0], params[1:]
		if addr == simID && s.regs[simLock] != 0 {
			return b.respond(id, s.status|feetech.ErrInstruction, nil)
		}
		s.write(addr, data, now)
		if addr == simID {
			delete(b.servos, int(id))
			b.servos[int(s.regs[simID])] = s
		}
		return b.respond(id, s.status, nil)
	}

	return b.respond(id, s.status|feetech.ErrInstruction, nil)
}

// respond encodes a status packet; the status byte takes the instruction slot.
func (b *SimBus) respond(id byte, status feetech.StatusError, params []byte) []byte {
	return b.proto.Encode(feetech.Packet{
		ID:          id,
		Instruction: byte(status),
		Parameters:  params,
	})
}

func (s *simServo) write(addr byte, data []byte, now time.Time) {
	copy(s.regs[addr:], data)

	switch addr {
	case simTorque:
		if s.regs[simTorque] != 0 {
			// Hold the current position.
			s.setWord(simGoal, s.word(simPosition))
		}
		s.from = int(s.word(simPosition))
		s.startAt = now
	case simGoal, simSpeed:
		s.from = int(s.word(simPosition))
		s.startAt = now
	}
	s.advance(now)
}

// advance moves the servo toward its goal at the commanded speed.
func (s *simServo) advance(now time.Time) {
	pos := int(s.word(simPosition))
	goal := int(s.word(simGoal))

	if s.regs[simTorque] == 0 || pos == goal {
		s.settle()
		return
	}

	speed := int(s.word(simSpeed) &^ 0x8000)
	if speed == 0 {
		speed = simMaxSpeed
	}

	dist := goal - s.from
	travelled := int(now.Sub(s.startAt).Seconds() * float64(speed))
	if travelled >= abs(dist) {
		s.setWord(simPosition, uint16(goal))
		s.settle()
		return
	}

	velocity := uint16(speed)
	if dist < 0 {
		travelled = -travelled
		velocity |= 0x8000
	}
	s.setWord(simPosition, uint16(s.from+travelled))
	s.setWord(simVelocity, velocity)
	s.setWord(simLoad, simMoveLoad)
	s.setWord(simCurrent, simMoveCurrent)
	s.regs[simMoving] = 1
}

func (s *simServo) settle() {
	s.setWord(simVelocity, 0)
	s.setWord(simLoad, 0)
	s.setWord(simCurrent, simIdleCurrent)
	s.regs[simMoving] = 0
}

// simPort is one open connection to a SimBus.
type simPort struct {
	bus *SimBus

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func (p *simPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *simPort) Write(packet []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	p.pending = append(p.pending, p.bus.handle(packet)...)
	return len(packet), nil
}

func (p *simPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.pending = nil
	return nil
}

func (p *simPort) SetReadTimeout(time.Duration) error {
	return nil
}

func (p *simPort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}

func (s *simServo) word(addr byte) uint16 {
	return s.proto.DecodeWord(s.regs[addr:])
}

func (s *simServo) setWord(addr byte, v uint16) {
	s.proto.ByteOrder().PutUint16(s.regs[addr:], v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
