// Package daq reads decoded hit records handed over by the data-acquisition
// chain. Records are JSON lines, one hit per line:
//
//	{"detector":17,"coarse":3,"fine":9,"channel":4,"amplitudes":[12,40,33]}
//
// Blank lines and lines starting with '#' are ignored. The reader does not
// check addresses against a readout layout; that is the grouper's job.
package daq
