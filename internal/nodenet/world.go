package nodenet

// WorldAdapter binds a nodenet to its environment. Sensors read named
// datasources and actors write named datatargets through it.
type WorldAdapter interface {
	// Snapshot freezes the readable state before a step.
	Snapshot()
	// ReadDatasource returns the current value of a datasource and whether it exists.
	ReadDatasource(name string) (float64, bool)
	// WriteDatatarget adds value to a datatarget.
	WriteDatatarget(name string, value float64)
	Datasources() []string
	Datatargets() []string
}
