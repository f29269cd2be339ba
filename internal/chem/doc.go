// Package chem provides the core primitives shared by every solver backend.
//
// The package defines the layout-independent contracts a caller programs
// against, regardless of which backend or memory layout is active:
//
//   - [SolverType]: selector naming an integration scheme, layout and device
//   - [Backend]: a configured solver for one mechanism
//   - [State]: per-grid-cell concentrations, rate parameters and conditions
//   - [Result]: terminal integration status plus step statistics
//   - [Handle]: an owned backend bundled with its release function
//
// # Example
//
//	b, _ := cpu.New(mech, chem.Rosenbrock, cpu.Options{})
//	st, _ := b.CreateState(2)
//	_ = st.SetConcentration(0, "O3", 1e-6)
//	res, _ := b.Solve(st, 60)
//	fmt.Println(res.Status)
//
// # Errors
//
// Fallible operations return an error only when the call could not be
// attempted at all. A Solve that ran but did not converge returns a nil
// error and reports the outcome through [Result.Status].
package chem
