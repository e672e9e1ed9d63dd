package config

type WorkerKeyStruct struct {
	PersistTabSwitchQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistTabSwitchQueue: "persist_tab_switch_queue",
}
