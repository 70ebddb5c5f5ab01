package logger

// Option overrides one field of a Config, e.g. from a command-line flag
type Option func(*Config)

func WithLevel(level string) Option {
	return func(c *Config) { c.Level = level }
}

func WithFormat(format string) Option {
	return func(c *Config) { c.Format = format }
}

func WithCaller(enabled bool) Option {
	return func(c *Config) { c.EnableCaller = enabled }
}

// Apply returns a copy of c with opts applied
func (c Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Verbose 调试输出：debug 级别、console 格式、带调用位置
func Verbose() []Option {
	return []Option{WithLevel("debug"), WithFormat("console"), WithCaller(true)}
}
