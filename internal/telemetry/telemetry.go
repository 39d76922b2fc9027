// Package telemetry defines the best-effort sink the engine reports into.
// Sink calls must never affect simulation correctness; implementations
// swallow their own failures.
package telemetry

import "go.uber.org/zap"

// Sink receives engine events. All methods are fire-and-report: the engine
// calls them synchronously inside the triggering tick and ignores outcomes.
type Sink interface {
	LogReward(value float64, source, context string)
	LogSelfModel(model map[string]float64)
	LogSubstrateState(cycle uint64, globalActivation float64, regions, synapses int)
	StartEpisode(name string)
	EndEpisode(name string)
}

// ZapSink logs every event through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a logging sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) LogReward(value float64, source, context string) {
	s.logger.Info("reward",
		zap.Float64("value", value),
		zap.String("source", source),
		zap.String("context", context))
}

func (s *ZapSink) LogSelfModel(model map[string]float64) {
	s.logger.Debug("self model", zap.Any("model", model))
}

func (s *ZapSink) LogSubstrateState(cycle uint64, globalActivation float64, regions, synapses int) {
	s.logger.Debug("substrate state",
		zap.Uint64("cycle", cycle),
		zap.Float64("global_activation", globalActivation),
		zap.Int("regions", regions),
		zap.Int("synapses", synapses))
}

func (s *ZapSink) StartEpisode(name string) {
	s.logger.Info("episode started", zap.String("episode", name))
}

func (s *ZapSink) EndEpisode(name string) {
	s.logger.Info("episode ended", zap.String("episode", name))
}

// Noop discards everything.
type Noop struct{}

func (Noop) LogReward(float64, string, string)               {}
func (Noop) LogSelfModel(map[string]float64)                 {}
func (Noop) LogSubstrateState(uint64, float64, int, int)     {}
func (Noop) StartEpisode(string)                             {}
func (Noop) EndEpisode(string)                               {}
