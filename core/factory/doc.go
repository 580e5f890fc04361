// Package factory is a small generic registry that builds modules from
// configuration. A module is selected by a type string and receives a map of
// raw settings which its factory decodes with Decode.
//
//	reg := factory.NewRegistry[decisionlog.Store]()
//	_ = reg.Register("sqlite", func(conf map[string]any) (decisionlog.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return decisionlog.NewSQLiteStore(c.Path)
//	})
//	store, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "decisions.db"}})
package factory
