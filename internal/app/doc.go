// Package app wires the prosecheck pipeline together and manages its
// lifecycle. It builds the analyzer selected by configuration, connects
// the document buffer to the chunk dispatcher through the update
// coordinator, and exposes one-shot and continuous checking entry
// points.
//
// A typical embedding:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	a, err := app.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	findings, err := a.CheckOnce(ctx, text)
//
// For continuous checking, register a findings handler and start the
// app. Every document revision then triggers a fresh analysis pass,
// superseding any pass still in flight:
//
//	a.OnPass(func(p app.Pass) {
//	    for _, f := range p.Findings {
//	        fmt.Println(f.Message)
//	    }
//	})
//	if err := a.Start(); err != nil {
//	    return err
//	}
//	defer a.Stop(context.Background())
//
//	a.Submit(coordinate.Request{
//	    Kind:    coordinate.KindReplaceDocument,
//	    Content: newText,
//	    Source:  "file-watch",
//	})
//
// The package also provides the leveled Logger and the Metrics
// collector used across the module.
package app
